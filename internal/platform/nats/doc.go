// Package nats implements job.Queue on NATS JetStream.
//
// Every job is published to "jobs.<name>" on a single stream. A durable
// consumer per registered job name runs the handler; failures are
// redelivered after the job's backoff until its attempts are used up, at
// which point the message is copied to "jobs.dead.<name>" and terminated.
package nats
