// Package job runs named background jobs with bounded retries.
//
// A Queue accepts jobs by name; the local Runner persists each job through a
// Store, hands it to a pool of worker goroutines and retries failures after a
// fixed delay until the job runs out of attempts. Jobs that exhaust their
// attempts are marked failed and reported to the dead-letter hook. Handlers
// are looked up by job name in a Registry shared with other Queue
// implementations.
package job
