// Package sharing implements the Shamir share codec and the custody
// planner for KeyFate secrets.
//
// # Codec
//
// Split and Combine wrap Shamir's Secret Sharing over GF(256)
// (github.com/hashicorp/vault/shamir): a secret split into N shares with
// threshold K reconstructs byte-exact from any K shares, while K-1 shares
// are information-theoretically useless. The codec is pure; it performs no
// I/O and never logs key material.
//
// # Custody
//
// Plan maps each non-server share index to a holder (owner, recipient, or
// backup) under one of two explicit policies:
//
//   - PolicyPerRecipient (canonical): each recipient gets a distinct index.
//   - PolicySharedShare (legacy): all recipients share index 1.
//
// Share index 0 is always server custody and never appears in a plan.
package sharing
