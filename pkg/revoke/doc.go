// Package revoke implements administrative revocation of device records.
//
// Revocation is a full reset: every slot is freed, capacity returns to the
// device cap, and the blocked flag is cleared. There is no per-slot
// unblocking; a user starts over with a clean record. Only administrators
// may revoke, and the HTTP surface additionally demands a single-use
// action token bound to the target user so a captured revoke request
// cannot be replayed.
package revoke
