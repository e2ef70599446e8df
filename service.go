package postbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync/atomic"

	"github.com/rbaliyan/event/v3"
	"github.com/rbaliyan/event/v3/transport"
	"github.com/rbaliyan/event/v3/transport/noop"
	eventredis "github.com/rbaliyan/event/v3/transport/redis"
	"github.com/rbaliyan/postbox/store"
	"golang.org/x/sync/semaphore"
)

// ServiceHealth reports readiness.
type ServiceHealth interface {
	IsConnected() bool
}

// Directory resolves and registers user identities.
type Directory interface {
	// CreateUser registers a user under the normalized email.
	CreateUser(ctx context.Context, email, name string) (*User, error)
	// GetUserByEmail returns (nil, nil) when no user has the email.
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	// GetUserByID returns (nil, nil) for unknown or malformed ids.
	GetUserByID(ctx context.Context, id string) (*User, error)
	// ListUsers returns all users, oldest first.
	ListUsers(ctx context.Context) ([]*User, error)
	// Users lists all users when id is empty, otherwise returns the single
	// user or ErrUnknownUser.
	Users(ctx context.Context, id string) ([]*User, error)
}

// Sender fans a message out to its recipients.
type Sender interface {
	SendMessage(ctx context.Context, req SendRequest) (*SentMessage, error)
}

// ReadTracker records per-recipient read state.
type ReadTracker interface {
	// MarkRead flips the recipient's row from unread to read. A second call
	// fails with ErrAlreadyRead.
	MarkRead(ctx context.Context, messageID, recipientEmail string) error
}

// Viewer provides the query projections.
type Viewer interface {
	SentMessages(ctx context.Context, senderEmail string) ([]SentMessage, error)
	InboxMessages(ctx context.Context, recipientEmail string) ([]InboxMessage, error)
	UnreadMessages(ctx context.Context, recipientEmail string) ([]InboxMessage, error)
	MessageDetail(ctx context.Context, messageID string) (*MessageDetail, error)
	// Messages returns the user's sent and received messages, newest first.
	Messages(ctx context.Context, userEmail string) ([]MessageView, error)
	// AllMessages returns every user's combined view merged, newest first.
	AllMessages(ctx context.Context) ([]MessageView, error)
}

// Reporter provides aggregate statistics.
type Reporter interface {
	UserProfile(ctx context.Context, userID string) (*UserProfile, error)
	SystemStats(ctx context.Context) (*SystemStats, error)
}

// Service is the messaging core. Every method except Connect, Events and
// IsConnected returns ErrNotConnected until Connect succeeds.
type Service interface {
	ServiceHealth
	Directory
	Sender
	ReadTracker
	Viewer
	Reporter

	// Connect opens the store, the event bus and the plugins, in that order.
	Connect(ctx context.Context) error
	// Close drains in-flight sends, then releases everything Connect opened.
	Close(ctx context.Context) error
	// Events is nil until Connect succeeds.
	Events() *ServiceEvents
}

const (
	stateDisconnected int32 = iota
	stateConnecting
	stateConnected
)

type service struct {
	store   store.Store
	logger  *slog.Logger
	opts    *options
	plugins *pluginRegistry
	otel    *otelInstrumentation

	state atomic.Int32
	// sendSem holds one slot per running SendMessage. Close takes them all.
	sendSem *semaphore.Weighted
	bus     *event.Bus
	events  *ServiceEvents
}

var _ Service = (*service)(nil)

// NewService builds a service around the store given by WithStore. It does no
// I/O; call Connect before use. Wrap the store with store/cached to put the
// user directory behind Redis.
func NewService(opts ...Option) (Service, error) {
	o := newOptions(opts...)
	if o.store == nil {
		return nil, ErrStoreRequired
	}

	instr, err := newOtelInstrumentation(o)
	if err != nil {
		return nil, fmt.Errorf("init otel: %w", err)
	}

	s := &service{
		store:   o.store,
		logger:  o.logger,
		opts:    o,
		plugins: newPluginRegistry(o.logger),
		otel:    instr,
		sendSem: semaphore.NewWeighted(int64(o.sends.concurrency)),
	}
	for _, p := range o.plugins {
		s.plugins.register(p)
	}
	return s, nil
}

func (s *service) Events() *ServiceEvents { return s.events }

func (s *service) IsConnected() bool { return s.state.Load() == stateConnected }

func (s *service) checkConnected() error {
	if !s.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

func (s *service) Connect(ctx context.Context) (err error) {
	if !s.state.CompareAndSwap(stateDisconnected, stateConnecting) {
		return ErrAlreadyConnected
	}
	var undo []func()
	defer func() {
		if err == nil {
			s.state.Store(stateConnected)
			return
		}
		for _, fn := range slices.Backward(undo) {
			fn()
		}
		s.state.Store(stateDisconnected)
	}()

	if err := s.store.Connect(ctx); err != nil {
		return fmt.Errorf("connect store: %w", err)
	}
	undo = append(undo, func() { _ = s.store.Close(ctx) })

	if err := s.openEventBus(ctx); err != nil {
		return fmt.Errorf("init event bus: %w", err)
	}
	undo = append(undo, func() { _ = s.closeEventBus(ctx) })

	if err := s.plugins.initAll(ctx); err != nil {
		return fmt.Errorf("init plugins: %w", err)
	}

	s.logger.Info("postbox connected", "service", s.opts.tel.name)
	return nil
}

// busSeq keeps bus names unique when several services share a process.
var busSeq atomic.Int64

func (s *service) eventTransport() (transport.Transport, error) {
	switch {
	case s.opts.events.transport != nil:
		return s.opts.events.transport, nil
	case s.opts.events.redis != nil:
		t, err := eventredis.New(s.opts.events.redis)
		if err != nil {
			return nil, fmt.Errorf("create redis transport: %w", err)
		}
		return t, nil
	default:
		return noop.New(), nil
	}
}

// openEventBus gives this service its own bus and binds its own event
// instances to it, so two services never see each other's events.
func (s *service) openEventBus(ctx context.Context) error {
	t, err := s.eventTransport()
	if err != nil {
		return err
	}
	name := fmt.Sprintf("%s-%d", s.opts.tel.name, busSeq.Add(1))
	bus, err := event.NewBus(name, event.WithTransport(t))
	if err != nil {
		return fmt.Errorf("create event bus: %w", err)
	}

	events := newServiceEvents(name)
	if err := registerServiceEvents(ctx, bus, events); err != nil {
		_ = bus.Close(ctx)
		return fmt.Errorf("register service events: %w", err)
	}
	s.bus, s.events = bus, events
	s.logger.Debug("event bus ready", "bus", name)
	return nil
}

func (s *service) closeEventBus(ctx context.Context) error {
	if s.bus == nil {
		return nil
	}
	err := s.bus.Close(ctx)
	s.bus = nil
	return err
}

func (s *service) Close(ctx context.Context) error {
	if !s.state.CompareAndSwap(stateConnected, stateDisconnected) {
		return nil
	}

	var errs []error
	// New sends are refused from here on, so owning every slot means the
	// running ones have finished.
	slots := int64(s.opts.sends.concurrency)
	drainCtx, cancel := context.WithTimeout(ctx, s.opts.sends.drain)
	defer cancel()
	if err := s.sendSem.Acquire(drainCtx, slots); err != nil {
		s.logger.Warn("in-flight sends still running at shutdown", "timeout", s.opts.sends.drain, "error", err)
		errs = append(errs, fmt.Errorf("graceful shutdown timeout: %w", err))
	} else {
		s.sendSem.Release(slots)
	}

	if err := s.plugins.closeAll(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close plugins: %w", err))
	}
	if err := s.closeEventBus(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close event bus: %w", err))
	}
	if err := s.store.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}

	s.logger.Info("postbox closed")
	return errors.Join(errs...)
}
