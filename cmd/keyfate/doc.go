// Command keyfate is the client-side companion to keyfate-server. Secrets
// are split on the user's device: the server never sees the plaintext or
// the non-server shares. The split command produces the server share for
// upload and vaults the rest locally; shares show/forget manage the vault,
// and recover reconstructs a secret from any threshold-size set of shares.
package main
