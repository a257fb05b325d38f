package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrEventValidation     = errors.New("audit event validation failed")
	ErrStorageNotAvailable = errors.New("audit storage is unavailable")
)

// Result is the outcome of an audited action.
type Result string

const (
	ResultSuccess Result = "success"
	ResultFailure Result = "failure"
	ResultError   Result = "error"
)

// Event is one audit trail entry.
type Event struct {
	ID         uuid.UUID      `json:"id"`
	ActorID    string         `json:"actor_id,omitempty"`
	Action     string         `json:"action"`
	Resource   string         `json:"resource,omitempty"`
	ResourceID string         `json:"resource_id,omitempty"`
	Result     Result         `json:"result"`
	Error      string         `json:"error,omitempty"`
	RequestID  string         `json:"request_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Validate checks the fields every stored event must have.
func (e Event) Validate() error {
	if e.Action == "" {
		return fmt.Errorf("%w: action is required", ErrEventValidation)
	}
	return nil
}

// Storage persists audit events.
type Storage interface {
	Store(ctx context.Context, events ...Event) error
}

// Extractor reads one value from the request context.
type Extractor func(context.Context) (string, bool)

// EventOption sets optional event fields.
type EventOption func(*Event)

func WithResource(resource, id string) EventOption {
	return func(e *Event) {
		e.Resource = resource
		e.ResourceID = id
	}
}

func WithMetadata(key string, value any) EventOption {
	return func(e *Event) {
		if e.Metadata == nil {
			e.Metadata = make(map[string]any)
		}
		e.Metadata[key] = value
	}
}

func WithResult(result Result) EventOption {
	return func(e *Event) { e.Result = result }
}

// WithActor overrides the actor taken from context. Used for actions
// triggered by the payment processor or the scheduler.
func WithActor(id string) EventOption {
	return func(e *Event) { e.ActorID = id }
}

type Option func(*Logger)

func WithActorExtractor(fn Extractor) Option {
	return func(l *Logger) { l.actor = fn }
}

func WithRequestIDExtractor(fn Extractor) Option {
	return func(l *Logger) { l.requestID = fn }
}

func WithClock(now func() time.Time) Option {
	return func(l *Logger) { l.now = now }
}

// Logger writes audit events to a Storage, filling actor and request id from
// the context.
type Logger struct {
	storage   Storage
	actor     Extractor
	requestID Extractor
	now       func() time.Time
}

// NewLogger creates an audit logger. It panics on a nil storage.
func NewLogger(storage Storage, opts ...Option) *Logger {
	if storage == nil {
		panic("audit: storage cannot be nil")
	}
	l := &Logger{storage: storage, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Log records a successful action.
func (l *Logger) Log(ctx context.Context, action string, opts ...EventOption) error {
	return l.store(ctx, action, ResultSuccess, nil, opts)
}

// LogError records an action that failed with err.
func (l *Logger) LogError(ctx context.Context, action string, err error, opts ...EventOption) error {
	return l.store(ctx, action, ResultError, err, opts)
}

func (l *Logger) store(ctx context.Context, action string, result Result, cause error, opts []EventOption) error {
	event := Event{
		ID:        uuid.New(),
		Action:    action,
		Result:    result,
		CreatedAt: l.now().UTC(),
	}
	if cause != nil {
		event.Error = cause.Error()
	}
	if l.actor != nil {
		event.ActorID, _ = l.actor(ctx)
	}
	if l.requestID != nil {
		event.RequestID, _ = l.requestID(ctx)
	}
	for _, opt := range opts {
		opt(&event)
	}

	if err := event.Validate(); err != nil {
		return err
	}
	if err := l.storage.Store(ctx, event); err != nil {
		return errors.Join(ErrStorageNotAvailable, err)
	}
	return nil
}
