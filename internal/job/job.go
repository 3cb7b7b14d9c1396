package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status represents the current state of a job.
type Status string

// Possible job status values
const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Common errors returned by queues.
var (
	ErrQueueClosed    = errors.New("job queue is closed")
	ErrUnknownHandler = errors.New("no handler registered for job")
)

// Options control how a job is retried.
type Options struct {
	// Attempts is the total number of executions allowed, including the first.
	Attempts int
	// Backoff is the fixed delay between attempts.
	Backoff time.Duration
}

func (o Options) normalized() Options {
	if o.Attempts < 1 {
		o.Attempts = 1
	}
	if o.Backoff < 0 {
		o.Backoff = 0
	}
	return o
}

// Job is one unit of background work.
type Job struct {
	ID          uuid.UUID
	Name        string
	Payload     json.RawMessage
	Status      Status
	Attempts    int
	MaxAttempts int
	Backoff     time.Duration
	LastError   string
	RunAt       time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// New creates a pending job, encoding payload as JSON.
func New(name string, payload any, opts Options) (*Job, error) {
	if name == "" {
		return nil, errors.New("job name cannot be empty")
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload for job %s: %w", name, err)
	}
	opts = opts.normalized()
	now := time.Now().UTC()
	return &Job{
		ID:          uuid.New(),
		Name:        name,
		Payload:     raw,
		Status:      StatusPending,
		MaxAttempts: opts.Attempts,
		Backoff:     opts.Backoff,
		RunAt:       now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Exhausted reports whether no attempts remain.
func (j *Job) Exhausted() bool {
	return j.Attempts >= j.MaxAttempts
}

// Queue accepts jobs for asynchronous execution.
type Queue interface {
	Enqueue(ctx context.Context, name string, payload any, opts Options) error
}

// Handler executes a job payload. A returned error triggers a retry while
// attempts remain.
type Handler interface {
	Handle(ctx context.Context, payload json.RawMessage) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, payload json.RawMessage) error

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, payload json.RawMessage) error {
	return f(ctx, payload)
}

// Registry maps job names to handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds a handler to a job name, replacing any previous one.
func (r *Registry) Register(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
}

// Lookup returns the handler for name.
func (r *Registry) Lookup(name string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownHandler, name)
	}
	return h, nil
}

// Names lists the registered job names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	return names
}

// Store persists jobs for the local Runner.
type Store interface {
	// Save inserts a new job.
	Save(ctx context.Context, job *Job) error

	// UpdateStatus records the job's status, attempt count, last error and
	// next run time.
	UpdateStatus(ctx context.Context, job *Job) error

	// GetPending returns jobs waiting to run, oldest first.
	GetPending(ctx context.Context) ([]*Job, error)

	// GetProcessing returns jobs in the processing state. When olderThan is
	// non-zero only jobs not updated for that long are returned.
	GetProcessing(ctx context.Context, olderThan time.Duration) ([]*Job, error)
}

// DeadLetterFunc is called once for every job that exhausts its attempts.
type DeadLetterFunc func(ctx context.Context, job *Job, err error)
