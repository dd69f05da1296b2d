// Package notification delivers outbound email. The server publishes jobs to Kafka;
// the worker consumes them and delivers over SMTP.
package notification

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"
)

const sendTimeout = 5 * time.Second

// Message is a plain-text email.
type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Validate returns an error if the message cannot be delivered.
func (m Message) Validate() error {
	if m.To == "" {
		return errors.New("notification: recipient is required")
	}
	if m.Subject == "" {
		return errors.New("notification: subject is required")
	}
	return nil
}

// DecodeMessage parses a job payload published by KafkaNotifier.
func DecodeMessage(payload []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(payload, &m); err != nil {
		return Message{}, err
	}
	return m, m.Validate()
}

// Notifier sends one message.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// SendAsync sends in a goroutine with a bounded timeout. Failures are logged, never returned.
func SendAsync(n Notifier, msg Message) {
	if n == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		if err := n.Send(ctx, msg); err != nil {
			log.Printf("notification: send to %s failed: %v", msg.To, err)
		}
	}()
}

// LogNotifier writes messages to the process log instead of sending them. Development only.
type LogNotifier struct{}

func (LogNotifier) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	log.Printf("notification: [dev] to=%s subject=%q body=%q", msg.To, msg.Subject, msg.Body)
	return nil
}
