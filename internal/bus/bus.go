// Package bus implements the SOMS message bus over NATS core pub/sub,
// presenting the slash-delimited, wildcard-friendly topic grammar the
// specification describes (office/{zone}/{device_type}/{device_id}[/{channel}],
// office/#, mcp/+/response/#) on top of NATS subjects.
package bus

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// Message is a single bus delivery: the original slash-form topic it was
// published on, and its raw payload.
type Message struct {
	Topic   string
	Payload []byte
}

// Handler processes one delivered Message. Handlers run on the bus
// library's own goroutine; a handler must never mutate shared state
// directly — it hands the message to a single-consumer channel owned by
// the subscriber's own scheduler.
type Handler func(Message)

// Bus is the publish/subscribe surface SOMS components depend on.
type Bus interface {
	Publish(topic string, payload []byte) error
	Subscribe(topicPattern string, h Handler) (Subscription, error)
	Close()
}

// Subscription lets a caller stop receiving messages for one Subscribe call.
type Subscription interface {
	Unsubscribe() error
}

// NATSBus is the production Bus backed by a NATS connection.
// Disconnects are handled entirely at the transport layer: the client
// reconnects forever and buffers outbound publishes, so no subscriber
// loses cycle state over a broker blip.
type NATSBus struct {
	conn *nats.Conn
	log  zerolog.Logger
}

// Connect dials the given NATS URL with unbounded reconnect attempts and a
// generous reconnect buffer, logging every connection-state transition.
func Connect(url string, log zerolog.Logger) (*NATSBus, error) {
	opts := []nats.Option{
		nats.Name("soms"),
		nats.MaxReconnects(-1), // unlimited — transport handles disconnects forever
		nats.ReconnectWait(2 * time.Second),
		nats.ReconnectBufSize(8 * 1024 * 1024),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("bus disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("url", c.ConnectedUrl()).Msg("bus reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Warn().Msg("bus connection closed")
		}),
	}

	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("bus: connect %s: %w", url, err)
	}
	return &NATSBus{conn: conn, log: log}, nil
}

// Publish sends payload on a slash-form topic, translating it to a NATS
// subject first.
func (b *NATSBus) Publish(topic string, payload []byte) error {
	return b.conn.Publish(ToSubject(topic), payload)
}

// Subscribe registers h for every message whose subject matches
// topicPattern (which may use `#`/`+` wildcards in slash form). h is
// invoked on a NATS-managed goroutine, never on the caller's own.
func (b *NATSBus) Subscribe(topicPattern string, h Handler) (Subscription, error) {
	sub, err := b.conn.Subscribe(ToSubject(topicPattern), func(msg *nats.Msg) {
		h(Message{Topic: FromSubject(msg.Subject), Payload: msg.Data})
	})
	if err != nil {
		return nil, fmt.Errorf("bus: subscribe %s: %w", topicPattern, err)
	}
	return sub, nil
}

// Close drains and closes the underlying connection.
func (b *NATSBus) Close() {
	if b.conn == nil {
		return
	}
	if err := b.conn.Drain(); err != nil {
		b.log.Warn().Err(err).Msg("bus drain failed")
	}
}
