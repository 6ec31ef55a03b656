package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// subject maps a stream name such as "events:roles" to "events.roles".
func subject(stream string) string {
	return strings.ReplaceAll(stream, ":", ".")
}

type NATSPublisher struct {
	conn *nats.Conn
	log  *zap.Logger
}

func NewNATSPublisher(conn *nats.Conn, log *zap.Logger) *NATSPublisher {
	return &NATSPublisher{conn: conn, log: log}
}

func (p *NATSPublisher) Publish(ctx context.Context, stream string, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := p.conn.Publish(subject(stream), data); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

type NATSSubscriber struct {
	conn *nats.Conn
	log  *zap.Logger
}

func NewNATSSubscriber(conn *nats.Conn, log *zap.Logger) *NATSSubscriber {
	return &NATSSubscriber{conn: conn, log: log}
}

func (s *NATSSubscriber) Subscribe(ctx context.Context, stream string, handler func(Event)) error {
	sub, err := s.conn.Subscribe(subject(stream), func(msg *nats.Msg) {
		event, err := decodeEvent(msg.Data)
		if err != nil {
			s.log.Error("failed to unmarshal event", zap.String("stream", stream), zap.Error(err))
			return
		}
		handler(event)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", stream, err)
	}

	go func() {
		<-ctx.Done()
		_ = sub.Unsubscribe()
	}()
	return nil
}
