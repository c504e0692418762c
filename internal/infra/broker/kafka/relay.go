package kafka

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"livelocal/internal/platform/feed"
	"livelocal/internal/remote"
)

// EventPublisher is the slice of Producer the relay needs.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, key string, payload []byte, headers map[string]string) error
}

// Relay bridges the platform change feed to Kafka: every committed table
// write becomes a CloudEvent on "<prefix><table>.events.v1". Downstream
// consumers (email dispatch, analytics) hang off those topics instead of
// the in-process bus.
type Relay struct {
	Producer    EventPublisher
	Bus         *feed.Bus
	TopicPrefix string
	Source      string
	Logger      *slog.Logger

	sub remote.Subscription
}

// Start subscribes the relay to the change feed. Publish failures are
// logged and dropped; the feed carries no replay guarantee either way.
func (r *Relay) Start() {
	r.sub = r.Bus.Subscribe("", remote.Filter{}, func(event remote.Event) {
		if err := r.publish(context.Background(), event); err != nil && r.Logger != nil {
			r.Logger.Error("change event relay failed", "table", event.Table, "error", err)
		}
	})
}

// Stop detaches the relay from the feed.
func (r *Relay) Stop() {
	if r.sub != nil {
		r.sub.Unsubscribe()
		r.sub = nil
	}
}

func (r *Relay) publish(ctx context.Context, event remote.Event) error {
	payload, err := r.formatCloudEvent(event)
	if err != nil {
		return err
	}
	key, _ := event.Row["id"].(string)
	topic := r.topicFor(event.Table + ".events.v1")
	return r.Producer.Publish(ctx, topic, key, payload, map[string]string{
		"content-type": "application/cloudevents+json",
	})
}

// MailTopic is where send-email jobs land.
const MailTopic = "mail.jobs.v1"

// PublishMail enqueues a mail job; it satisfies functions.MailPublisher.
func (r *Relay) PublishMail(ctx context.Context, payload []byte) error {
	return r.Producer.Publish(ctx, r.topicFor(MailTopic), uuid.NewString(), payload, map[string]string{
		"content-type": "application/json",
	})
}

func (r *Relay) formatCloudEvent(event remote.Event) ([]byte, error) {
	source := r.Source
	if source == "" {
		source = "livelocal"
	}
	return json.Marshal(map[string]any{
		"specversion":     "1.0",
		"id":              uuid.NewString(),
		"type":            event.Table + "." + string(event.Type) + ".v1",
		"source":          source,
		"time":            time.Now().UTC(),
		"datacontenttype": "application/json",
		"data":            event.Row,
	})
}

func (r *Relay) topicFor(suffix string) string {
	if r.TopicPrefix != "" {
		return r.TopicPrefix + suffix
	}
	return suffix
}
