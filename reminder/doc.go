// Package reminder schedules and dispatches check-in reminders.
//
// The Scheduler derives a ladder of reminders from a secret's next
// check-in deadline: at 50% and 25% of the remaining interval, then at
// fixed offsets of 7 days, 3 days, 24 hours, 12 hours, and 1 hour before
// the deadline. Rungs that would land in the past are skipped, and
// rescheduling replaces the pending ladder wholesale, so regenerating it
// after a check-in is idempotent.
//
// The Dispatcher drains due reminders in batches. Conditions are
// re-evaluated at dispatch time, not at schedule time: a pending reminder
// whose secret has since been paused, triggered, deleted, or stripped of
// its server share is cancelled instead of sent. Each delivery carries a
// freshly minted check-in token; failed deliveries retry with a backoff
// until the attempt budget is exhausted. The same pass sweeps active
// secrets past their deadline into the triggered state.
//
// Job wraps the dispatcher in a ticker loop for deployments that run the
// dispatcher in-process rather than from an external cron.
package reminder
