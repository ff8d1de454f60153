// Package sharevault implements the local, time-bounded store for the
// non-server shares produced by a split.
//
// The vault is deliberately device-scoped and non-durable: the server never
// sees post-split shares, so there is no server-side backup of this store,
// and there never should be. Entries carry a TTL (two hours by default) and
// are deleted on expiry. Writes are atomic (temp file plus rename), so a
// torn write can never be observed by a later load.
//
// The persisted shape is a JSON object under a key namespaced by secret id:
//
//	{"shares": ["a1b2...", ...], "expiresAt": 1716212345678}
//
// Load distinguishes four failure modes (missing, expired, corrupt, and
// share-count mismatch) so callers can render a specific, actionable
// message for each.
package sharevault
