// Package sharestore keeps the server custody share (index 0 of a split)
// at rest.
//
// Shares are sealed with XChaCha20-Poly1305 under a service master key
// before they reach any backend, with the secret id bound as associated
// data. Two backends are provided, selected by URI through a Factory:
//
//   - file:// - one sealed file per secret under a base directory
//   - vault:// - HashiCorp Vault KV v2; Vault only ever sees ciphertext
//
// Delete is deliberately destructive: removing a secret's server share
// permanently disables the server-side disclosure path. Callers pair it
// with cancelling the secret's pending reminders and forcing the secret
// out of the active state.
package sharestore
