package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	natsio "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/phrazzld/tasktrail-api/internal/config"
	"github.com/phrazzld/tasktrail-api/internal/job"
	"github.com/phrazzld/tasktrail-api/internal/metrics"
)

// DefaultStream is used when no stream name is configured.
const DefaultStream = "JOBS"

const (
	subjectPrefix     = "jobs."
	deadSubjectPrefix = "jobs.dead."

	headerJobID       = "Tasktrail-Job-Id"
	headerMaxAttempts = "Tasktrail-Max-Attempts"
	headerBackoff     = "Tasktrail-Backoff-Ms"
	headerLastError   = "Tasktrail-Last-Error"

	// ackWait bounds a single handler run before JetStream redelivers.
	ackWait = 2 * time.Minute
)

// Connect dials the NATS server from cfg.
func Connect(cfg config.NATSConfig) (*natsio.Conn, error) {
	url := cfg.URL
	if url == "" {
		url = natsio.DefaultURL
	}
	nc, err := natsio.Connect(url, natsio.Name("tasktrail-api"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats at %s: %w", url, err)
	}
	return nc, nil
}

// JobQueue publishes jobs to JetStream and consumes them with the handlers
// of a job.Registry.
type JobQueue struct {
	js       jetstream.JetStream
	stream   string
	registry *job.Registry
	logger   *slog.Logger
	metrics  *metrics.Metrics

	mu        sync.Mutex
	consumers []jetstream.ConsumeContext
}

var _ job.Queue = (*JobQueue)(nil)

// NewJobQueue creates or updates the jobs stream on nc.
func NewJobQueue(
	ctx context.Context,
	nc *natsio.Conn,
	stream string,
	registry *job.Registry,
	logger *slog.Logger,
	m *metrics.Metrics,
) (*JobQueue, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("failed to create jetstream context: %w", err)
	}
	if stream == "" {
		stream = DefaultStream
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     stream,
		Subjects: []string{subjectPrefix + ">"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create stream %s: %w", stream, err)
	}

	return &JobQueue{
		js:       js,
		stream:   stream,
		registry: registry,
		logger:   logger.With("component", "nats_job_queue"),
		metrics:  m,
	}, nil
}

// Enqueue implements job.Queue.
func (q *JobQueue) Enqueue(ctx context.Context, name string, payload any, opts job.Options) error {
	j, err := job.New(name, payload, opts)
	if err != nil {
		return err
	}

	msg := natsio.NewMsg(subjectPrefix + name)
	msg.Data = j.Payload
	msg.Header.Set(headerJobID, j.ID.String())
	msg.Header.Set(headerMaxAttempts, strconv.Itoa(j.MaxAttempts))
	msg.Header.Set(headerBackoff, strconv.FormatInt(j.Backoff.Milliseconds(), 10))

	if _, err := q.js.PublishMsg(ctx, msg, jetstream.WithMsgID(j.ID.String())); err != nil {
		return fmt.Errorf("failed to publish job %s: %w", name, err)
	}

	q.logger.Debug("job published", "job_id", j.ID, "job_name", name)
	return nil
}

// Start creates one durable consumer per registered job name and begins
// consuming.
func (q *JobQueue) Start(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, name := range q.registry.Names() {
		consumer, err := q.js.CreateOrUpdateConsumer(ctx, q.stream, jetstream.ConsumerConfig{
			Durable:       "jobs-" + name,
			FilterSubject: subjectPrefix + name,
			AckPolicy:     jetstream.AckExplicitPolicy,
			AckWait:       ackWait,
		})
		if err != nil {
			q.stopLocked()
			return fmt.Errorf("failed to create consumer for job %s: %w", name, err)
		}

		cc, err := consumer.Consume(q.handle)
		if err != nil {
			q.stopLocked()
			return fmt.Errorf("failed to consume job %s: %w", name, err)
		}
		q.consumers = append(q.consumers, cc)
		q.logger.Info("consuming jobs", "job_name", name)
	}
	return nil
}

// Stop stops all consumers. Messages in flight are redelivered later.
func (q *JobQueue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.stopLocked()
}

func (q *JobQueue) stopLocked() {
	for _, cc := range q.consumers {
		cc.Stop()
	}
	q.consumers = nil
}

func (q *JobQueue) handle(msg jetstream.Msg) {
	name := msg.Subject()[len(subjectPrefix):]
	h := msg.Headers()
	maxAttempts, _ := strconv.Atoi(h.Get(headerMaxAttempts))
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	backoffMS, _ := strconv.ParseInt(h.Get(headerBackoff), 10, 64)
	backoff := time.Duration(backoffMS) * time.Millisecond

	attempt := 1
	if md, err := msg.Metadata(); err == nil {
		attempt = int(md.NumDelivered)
	}

	log := q.logger.With("job_id", h.Get(headerJobID), "job_name", name, "attempt", attempt)

	err := q.execute(name, msg.Data())
	if err == nil {
		if ackErr := msg.Ack(); ackErr != nil {
			log.Error("failed to ack job", "error", ackErr)
		}
		q.metrics.JobOutcome(name, metrics.JobCompleted)
		log.Info("job completed")
		return
	}

	if attempt < maxAttempts && !errors.Is(err, job.ErrUnknownHandler) {
		log.Warn("job failed, will retry", "error", err, "retry_in", backoff)
		q.metrics.JobOutcome(name, metrics.JobRetried)
		if nakErr := msg.NakWithDelay(backoff); nakErr != nil {
			log.Error("failed to nak job", "error", nakErr)
		}
		return
	}

	q.metrics.JobOutcome(name, metrics.JobFailed)
	log.Error("job moved to dead letter", "error", err)
	q.deadLetter(name, msg, err, log)
	if termErr := msg.Term(); termErr != nil {
		log.Error("failed to terminate job", "error", termErr)
	}
}

func (q *JobQueue) execute(name string, payload json.RawMessage) (err error) {
	h, err := q.registry.Lookup(name)
	if err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job handler panicked: %v", r)
		}
	}()
	return h.Handle(context.Background(), payload)
}

func (q *JobQueue) deadLetter(name string, msg jetstream.Msg, cause error, log *slog.Logger) {
	dead := natsio.NewMsg(deadSubjectPrefix + name)
	dead.Data = msg.Data()
	for k, v := range msg.Headers() {
		dead.Header[k] = v
	}
	dead.Header.Del(natsio.MsgIdHdr)
	dead.Header.Set(headerLastError, cause.Error())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := q.js.PublishMsg(ctx, dead); err != nil {
		log.Error("failed to publish dead letter", "error", err)
	}
}
