package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
)

const defaultQueueSize = 256

// DispatcherConfig holds dependencies for the dispatcher.
type DispatcherConfig struct {
	Store      Store
	Hub        *Hub         // optional live feed
	Unread     *UnreadCache // optional unread-count cache
	QueueSize  int
	MaxRetries uint64 // delivery attempts per event beyond the first
}

// Dispatcher queues events and persists them with retry. Delivery
// failures are logged, never surfaced to the triggering caller.
type Dispatcher struct {
	store      Store
	hub        *Hub
	unread     *UnreadCache
	queue      chan Event
	maxRetries uint64
}

// NewDispatcher creates a dispatcher. Run must be started for queued
// events to be delivered.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	size := cfg.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	retries := cfg.MaxRetries
	if retries == 0 {
		retries = 5
	}
	return &Dispatcher{
		store:      cfg.Store,
		hub:        cfg.Hub,
		unread:     cfg.Unread,
		queue:      make(chan Event, size),
		maxRetries: retries,
	}
}

// Dispatch enqueues an event. Self-notifications are suppressed: no row
// is ever created where the actor is the recipient. Never blocks.
func (d *Dispatcher) Dispatch(ev Event) {
	if ev.ActorID != nil && *ev.ActorID == ev.RecipientID {
		slog.Debug("self-notification suppressed", "recipient", ev.RecipientID, "type", ev.Type)
		return
	}
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}

	select {
	case d.queue <- ev:
	default:
		// Queue is full; deliver out of band rather than dropping or
		// blocking the triggering write.
		slog.Warn("notification queue full, delivering inline", "event_id", ev.ID)
		go d.deliver(context.Background(), ev)
	}
}

// Run consumes the queue until ctx is cancelled. Events already queued
// when ctx ends are drained before Run returns.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case ev := <-d.queue:
			d.deliver(ctx, ev)
		case <-ctx.Done():
			for {
				select {
				case ev := <-d.queue:
					d.deliver(context.Background(), ev)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, ev Event) {
	var stored Notification

	op := func() error {
		n, err := d.store.Insert(ctx, ev)
		if err != nil {
			return err
		}
		stored = n
		return nil
	}

	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(100*time.Millisecond),
		backoff.WithMaxInterval(5*time.Second),
	), d.maxRetries)

	if err := backoff.Retry(op, backoff.WithContext(policy, ctx)); err != nil {
		slog.Warn("notification delivery failed",
			"event_id", ev.ID,
			"type", ev.Type,
			"recipient", ev.RecipientID,
			"error", err,
		)
		return
	}

	if d.unread != nil {
		d.unread.Invalidate(ctx, stored.UserID)
	}
	if d.hub != nil {
		d.hub.Publish(stored)
	}
	slog.Debug("notification delivered",
		"notification_id", stored.ID,
		"type", stored.Type,
		"recipient", stored.UserID,
	)
}
