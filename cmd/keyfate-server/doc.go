// Command keyfate-server runs the KeyFate API: check-in token redemption,
// reminder scheduling and dispatch, and the operational endpoints. Storage,
// the server share backend, and notification channels are selected by URI
// flags; the reminder dispatcher runs either on the in-process schedule or
// through the internal cron endpoint.
package main
