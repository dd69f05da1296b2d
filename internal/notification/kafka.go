package notification

import (
	"context"
	"encoding/json"
)

// Publisher writes one keyed message to a topic. Satisfied by *producer.KafkaProducer.
type Publisher interface {
	Publish(ctx context.Context, key, value []byte) error
}

// KafkaNotifier enqueues messages as JSON jobs keyed by recipient.
type KafkaNotifier struct {
	pub Publisher
}

// NewKafkaNotifier returns a Notifier that publishes email jobs through pub.
func NewKafkaNotifier(pub Publisher) *KafkaNotifier {
	return &KafkaNotifier{pub: pub}
}

func (k *KafkaNotifier) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return k.pub.Publish(ctx, []byte(msg.To), payload)
}
