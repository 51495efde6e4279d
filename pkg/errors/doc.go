// Package errors provides structured error handling with error codes for device-gate.
//
// This package standardizes error handling across all services with typed error codes,
// structured error details, and automatic HTTP status code mapping.
//
// # Basic Usage
//
// Creating errors with codes:
//
//	import "github.com/tendant/device-gate/pkg/errors"
//
//	// Create a simple error
//	err := errors.New(errors.ErrCodeForbidden, "administrative privilege required")
//
//	// Wrap an existing error
//	err := errors.Wrap(dbErr, errors.ErrCodeInternal, "failed to load device record")
//
//	// Use convenience constructors
//	err := errors.InvalidTarget(userID.String())
//	err := errors.RaceLost("device record", userID.String())
//
// # Error Codes
//
// Generic:
//   - ErrCodeInternal
//   - ErrCodeInvalidInput
//   - ErrCodeNotFound
//   - ErrCodeUnauthorized
//   - ErrCodeForbidden
//   - ErrCodeConflict
//
// Admission:
//   - ErrCodeDeviceBlocked
//   - ErrCodeRaceLost (optimistic write conflict on a user record; callers
//     retry with a fresh read rather than dropping the write)
//
// Revocation:
//   - ErrCodeInvalidTarget
//   - ErrCodeTokenInvalid
//   - ErrCodeTokenReplayed
//
// # Checking Error Codes
//
//	if errors.IsCode(err, errors.ErrCodeRaceLost) {
//		// re-read the record and retry
//	}
//
// # HTTP Status Mapping
//
//	status := errors.MapErrorCodeToHTTPStatus(errors.GetCode(err))
package errors
