// Package httpserver provides the public HTTP surface of the service.
//
// Two API routes exist: GET /api/checkin redeems a check-in token from a
// notification link, and POST /api/internal/reminders/process lets an
// external cron drive the reminder dispatcher, guarded by a bearer token.
// The server also exposes the operational endpoints (livez, readyz,
// drain/undrain, optional pprof) and runs the Prometheus scrape listener
// on a separate address.
package httpserver
