// Package metrics exposes the service's Prometheus counters and the
// standalone scrape endpoint. Counters are package-level so the reminder
// machinery can record outcomes without threading a registry through every
// collaborator.
package metrics
