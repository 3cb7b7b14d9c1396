// Package api handles incoming HTTP requests for tasks and their activity
// log. Each handler runs the same pipeline: the auth middleware has already
// identified the caller, the handler parses and validates a typed request,
// calls the service and maps the result or error to a JSON response.
package api
