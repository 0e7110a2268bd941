package eventbus

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/c360/semwidgets/errors"
)

// DefaultSubjectPrefix is used when a relay is created without a prefix.
const DefaultSubjectPrefix = "semwidgets.events"

// Publisher publishes raw messages. *natsclient.Client satisfies it.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// NATSRelay mirrors every delivered event to <prefix>.<eventType>.<componentId>.
type NATSRelay struct {
	publisher Publisher
	prefix    string
	logger    *slog.Logger
}

// NewNATSRelay creates a relay over publisher.
func NewNATSRelay(publisher Publisher, prefix string, logger *slog.Logger) *NATSRelay {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSRelay{publisher: publisher, prefix: strings.TrimSuffix(prefix, "."), logger: logger}
}

// Attach subscribes the relay to every event type on bus.
func (r *NATSRelay) Attach(bus *Bus) (detach func()) {
	return bus.OnConfigChange(TypeAll, r.Handle)
}

// Subject returns the subject an event is published on.
func (r *NATSRelay) Subject(ev Event) string {
	componentID := ev.ComponentID
	if componentID == "" {
		componentID = "_"
	}
	return r.prefix + "." + token(ev.Type) + "." + token(componentID)
}

// Handle publishes ev as JSON.
func (r *NATSRelay) Handle(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return errors.WrapInvalid(err, "eventbus", "NATSRelay.Handle", "marshal event")
	}
	subject := r.Subject(ev)
	if err := r.publisher.Publish(ctx, subject, data); err != nil {
		return errors.WrapTransient(err, "eventbus", "NATSRelay.Handle", "publish "+subject)
	}
	r.logger.Debug("relayed event", "subject", subject, "event_id", ev.ID)
	return nil
}

// token makes s usable as one subject token.
func token(s string) string {
	return strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_").Replace(s)
}
