package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pocketbase/dbx"
	pubnub "github.com/pubnub/go/v7"

	"ticketing-core/internal/status"
	"ticketing-core/models"
	"ticketing-core/monitoring"
	"ticketing-core/utils"
)

// appendOutbox inserts a domain event in the caller's transaction so the
// event commits or rolls back together with the state change.
func appendOutbox(tx dbx.Builder, aggregateType, aggregateID, eventType string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return status.Infrastructure("marshal outbox payload", err)
	}
	_, err = tx.Insert("outbox_events", dbx.Params{
		"id":             uuid.NewString(),
		"aggregate_type": aggregateType,
		"aggregate_id":   aggregateID,
		"event_type":     eventType,
		"payload":        string(body),
		"created_at":     models.NowDateTime(),
		"attempts":       0,
	}).Execute()
	if err != nil {
		return status.Infrastructure("insert outbox event", err)
	}
	return nil
}

// Publisher delivers one outbox event to the broker.
type Publisher interface {
	Publish(ctx context.Context, eventType string, payload json.RawMessage) error
}

// PubNubPublisher sends events to a single PubNub channel.
type PubNubPublisher struct {
	pn      *pubnub.PubNub
	channel string
}

func NewPubNubPublisher(pn *pubnub.PubNub, channel string) *PubNubPublisher {
	return &PubNubPublisher{pn: pn, channel: channel}
}

func (p *PubNubPublisher) Publish(ctx context.Context, eventType string, payload json.RawMessage) error {
	var body map[string]any
	if err := json.Unmarshal(payload, &body); err != nil {
		return err
	}
	_, _, err := p.pn.PublishWithContext(ctx).
		Channel(p.channel).
		Message(map[string]any{
			"type":    eventType,
			"payload": body,
		}).
		Execute()
	return err
}

// OutboxRelay drains unpublished outbox rows to the broker. Delivery is
// at-least-once: rows are only marked after a successful publish, so a crash
// between publish and mark re-delivers.
type OutboxRelay struct {
	db        *dbx.DB
	locker    Locker
	publisher Publisher
	breaker   *utils.CircuitBreaker
	batch     int
}

func NewOutboxRelay(db *dbx.DB, locker Locker, publisher Publisher, batch int) *OutboxRelay {
	return &OutboxRelay{
		db:        db,
		locker:    locker,
		publisher: publisher,
		breaker:   utils.NewCircuitBreaker("outbox-relay", 5, 30*time.Second),
		batch:     batch,
	}
}

// Run performs one relay cycle. Registered with the scheduler.
func (r *OutboxRelay) Run(ctx context.Context) error {
	return withLock(ctx, r.locker, LockKeyRelayJob, func() error {
		var pending []models.OutboxEvent
		err := r.db.Select("*").
			From("outbox_events").
			Where(dbx.NewExp("published_at IS NULL")).
			OrderBy("created_at ASC").
			Limit(int64(r.batch)).
			All(&pending)
		if err != nil {
			return status.Infrastructure("load unpublished outbox events", err)
		}

		for i := range pending {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			r.deliver(ctx, &pending[i])
		}
		return nil
	})
}

func (r *OutboxRelay) deliver(ctx context.Context, ev *models.OutboxEvent) {
	err := r.breaker.Execute(func() error {
		return r.publisher.Publish(ctx, ev.EventType, json.RawMessage(ev.Payload))
	})
	if err != nil {
		monitoring.TrackOutboxPublish("error")
		slog.Error("outbox publish failed", "event_id", ev.ID, "event_type", ev.EventType, "error", err)
		if _, uerr := r.db.NewQuery(
			`UPDATE outbox_events SET attempts = attempts + 1 WHERE id = {:id}`,
		).Bind(dbx.Params{"id": ev.ID}).Execute(); uerr != nil {
			slog.Error("outbox attempt bump failed", "event_id", ev.ID, "error", uerr)
		}
		return
	}

	_, err = r.db.NewQuery(
		`UPDATE outbox_events SET published_at = {:now}, attempts = attempts + 1 WHERE id = {:id}`,
	).Bind(dbx.Params{"now": models.NowDateTime(), "id": ev.ID}).Execute()
	if err != nil {
		// the event was published; next cycle re-publishes, consumers dedupe
		slog.Error("outbox mark published failed", "event_id", ev.ID, "error", err)
		monitoring.TrackOutboxPublish("mark_failed")
		return
	}
	monitoring.TrackOutboxPublish("published")
}
