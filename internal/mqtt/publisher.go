package mqtt

import (
	"context"
	"encoding/json"

	"github.com/tphakala/faceattend/internal/attendance"
	"github.com/tphakala/faceattend/internal/errors"
)

// Publisher is an attendance.Sink that publishes each event as JSON.
type Publisher struct {
	client Client
	topic  string
	node   string
}

// NewPublisher returns a publisher on topic. node names this installation
// in the payload and may be empty.
func NewPublisher(c Client, topic, node string) *Publisher {
	return &Publisher{client: c, topic: topic, node: node}
}

// Record publishes ev, connecting first when the client is not connected.
func (p *Publisher) Record(ctx context.Context, ev attendance.Event) error {
	payload, err := json.Marshal(newAttendanceMessage(ev, p.node))
	if err != nil {
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryMQTTPublish).
			Build()
	}

	if !p.client.IsConnected() {
		if err := p.client.Connect(ctx); err != nil {
			return err
		}
	}
	return p.client.Publish(ctx, p.topic, string(payload))
}

// Close disconnects the client.
func (p *Publisher) Close() {
	p.client.Disconnect()
}

var _ attendance.Sink = (*Publisher)(nil)
