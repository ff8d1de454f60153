// Package notify delivers reminder notifications to secret owners.
//
// Two transports are implemented: an HTTP email gateway client and a
// signed webhook poster. Fallback composes them in a fixed preference
// order and stops at the first transport that accepts the message, so one
// reminder firing never produces more than one delivery. Retrying across
// firings is the dispatcher's job, not the channel's.
package notify
