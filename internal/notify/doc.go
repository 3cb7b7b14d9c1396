// Package notify sends assignment emails. The task-assigned job handler
// decodes the job payload and hands a message to an EmailSender; returning
// the sender's error lets the job queue retry it.
package notify
