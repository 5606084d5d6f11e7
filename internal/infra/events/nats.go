package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"

	"socialcore/pkg/domain"
)

// DefaultSubjectPrefix roots every subject published by NATSPublisher.
const DefaultSubjectPrefix = "socialcore"

// natsConn is the part of *nats.Conn the publisher needs.
type natsConn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// NATSPublisher publishes each change as JSON on <prefix>.<entity>.<action>.
type NATSPublisher struct {
	conn   natsConn
	prefix string
}

// DialNATS connects to url and returns a publisher using prefix.
func DialNATS(url, prefix string, opts ...nats.Option) (*NATSPublisher, error) {
	opts = append([]nats.Option{nats.Name("socialcore")}, opts...)
	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	return newNATSPublisher(conn, prefix), nil
}

func newNATSPublisher(conn natsConn, prefix string) *NATSPublisher {
	prefix = strings.Trim(prefix, ".")
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSPublisher{conn: conn, prefix: prefix}
}

// Subject returns the subject a change is published on.
func (p *NATSPublisher) Subject(change domain.Change) string {
	return p.prefix + "." + string(change.Entity) + "." + string(change.Action)
}

// Publish implements core.EventPublisher.
func (p *NATSPublisher) Publish(_ context.Context, change domain.Change) error {
	data, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("encode change: %w", err)
	}
	subject := p.Subject(change)
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Close drains pending messages and closes the connection.
func (p *NATSPublisher) Close() error { return p.conn.Drain() }
