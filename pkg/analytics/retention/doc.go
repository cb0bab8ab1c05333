// Package retention prunes analytics records older than the retention
// horizon on a cron schedule.
//
// The Pruner computes the cutoff (now minus RetentionDays) and hands it to
// a Cleaner, normally the analytics writer, which runs the deletion on its
// worker goroutine. The Scheduler triggers the Pruner using standard
// five-field cron syntax; the default is hourly ("0 * * * *").
package retention
