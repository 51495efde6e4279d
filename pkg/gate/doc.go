// Package gate enforces the per-user device cap on authenticated requests.
//
// Every non-administrator request passes through the admission gate, which
// derives a device fingerprint from the user agent and consults the slot
// store:
//
//   - a known fingerprint is allowed with no writes
//   - a new fingerprint takes the first free slot while capacity remains
//   - a new fingerprint with no capacity left flips the user into the
//     blocked state, terminates the session, and redirects to the denial
//     destination
//
// Blocking is one-way: capacity stays frozen and no slot is displaced. Only
// an administrator revocation (pkg/revoke) clears the state.
//
// # Middleware
//
//	svc := gate.NewService(repo, fingerprint.NewDefaultGenerator())
//	mw := gate.NewMiddleware(svc, gate.MiddlewareConfig{
//		DenialURL:      "/device-limit",
//		BypassPrefixes: []string{"/api/admin", "/api/internal"},
//	}, client.NewCookieSessionTerminator(true, true))
//
//	r.Use(mw.Redirector) // catches already-blocked users everywhere
//	r.Group(func(r chi.Router) {
//		r.Use(mw.Handler) // admission on application routes
//		...
//	})
//
// The Redirector is registered independently of the admission handler so a
// blocked user is caught even on routes the gate does not cover, and the
// block persists across the forced logout: the flag is written before the
// session is terminated, so an interrupted logout still redirects
// deterministically on the next request.
package gate
