// Package checkin issues and redeems the single-use tokens that extend a
// secret's check-in deadline.
//
// A token is 32 random bytes, handed out hex-encoded; only its SHA-256
// hash is persisted. Redemption is the one concurrency-sensitive operation
// in the system: the store consumes the token with a conditional write, so
// two requests racing on the same check-in link have exactly one winner.
// Consuming the token, advancing the secret's deadline, and regenerating
// its reminder ladder happen inside one transaction; a failure anywhere
// fails the redemption as a whole.
package checkin
