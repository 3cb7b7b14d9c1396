// Package events lets services announce work that should happen in the
// background without depending on the job queue.
//
// The task service emits a TaskRequestEvent of type TaskAssigned whenever a
// task gains a new assignee; a handler registered on the emitter turns it
// into a queued notification job.
package events
