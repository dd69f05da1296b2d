package notification

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"sync"
	"testing"
	"time"
)

type capturePublisher struct {
	mu    sync.Mutex
	key   []byte
	value []byte
	err   error
}

func (c *capturePublisher) Publish(ctx context.Context, key, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.key, c.value = key, value
	return c.err
}

func TestKafkaNotifier_RoundTripsThroughDecode(t *testing.T) {
	pub := &capturePublisher{}
	n := NewKafkaNotifier(pub)
	msg := Message{To: "a@x.com", Subject: "Reset your password", Body: "link"}
	if err := n.Send(context.Background(), msg); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if string(pub.key) != "a@x.com" {
		t.Errorf("key = %q, want recipient", pub.key)
	}
	got, err := DecodeMessage(pub.value)
	if err != nil {
		t.Fatalf("DecodeMessage: %v", err)
	}
	if got != msg {
		t.Errorf("decoded = %+v, want %+v", got, msg)
	}
}

func TestKafkaNotifier_RejectsInvalid(t *testing.T) {
	pub := &capturePublisher{}
	if err := NewKafkaNotifier(pub).Send(context.Background(), Message{Subject: "x"}); err == nil {
		t.Fatal("expected error for missing recipient")
	}
	if pub.value != nil {
		t.Error("invalid message should not be published")
	}
}

func TestDecodeMessage_Invalid(t *testing.T) {
	if _, err := DecodeMessage([]byte("{")); err == nil {
		t.Error("expected JSON error")
	}
	if _, err := DecodeMessage([]byte(`{"to":"a@x.com"}`)); err == nil {
		t.Error("expected validation error for missing subject")
	}
}

func TestSMTPMailer_Send(t *testing.T) {
	m, err := NewSMTPMailer(SMTPConfig{Host: "smtp.local", Username: "u", Password: "p", From: "no-reply@x.com"})
	if err != nil {
		t.Fatalf("NewSMTPMailer: %v", err)
	}
	var gotAddr, gotFrom string
	var gotTo []string
	var gotBody []byte
	m.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotBody = addr, from, to, msg
		if a == nil {
			t.Error("auth should be set when username is configured")
		}
		return nil
	}
	err = m.Send(context.Background(), Message{To: "a@x.com", Subject: "Hi\r\nBcc: evil@x.com", Body: "line1\nline2"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if gotAddr != "smtp.local:587" || gotFrom != "no-reply@x.com" || len(gotTo) != 1 || gotTo[0] != "a@x.com" {
		t.Errorf("addr=%q from=%q to=%v", gotAddr, gotFrom, gotTo)
	}
	body := string(gotBody)
	if strings.Contains(body, "\r\nBcc:") {
		t.Error("subject CRLF should be stripped")
	}
	if !strings.Contains(body, "line1\r\nline2") {
		t.Errorf("body not CRLF-normalized: %q", body)
	}
}

func TestSMTPMailer_CancelledContext(t *testing.T) {
	m, _ := NewSMTPMailer(SMTPConfig{Host: "smtp.local"})
	called := false
	m.sendMail = func(string, smtp.Auth, string, []string, []byte) error { called = true; return nil }
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := m.Send(ctx, Message{To: "a@x.com", Subject: "s"}); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if called {
		t.Error("sendMail should not be called after cancellation")
	}
}

func TestNewSMTPMailer_RequiresHost(t *testing.T) {
	if _, err := NewSMTPMailer(SMTPConfig{}); err == nil {
		t.Fatal("expected error without host")
	}
}

type chanNotifier struct{ ch chan Message }

func (c chanNotifier) Send(ctx context.Context, msg Message) error {
	c.ch <- msg
	return errors.New("ignored")
}

func TestSendAsync(t *testing.T) {
	SendAsync(nil, Message{})
	n := chanNotifier{ch: make(chan Message, 1)}
	SendAsync(n, Message{To: "a@x.com", Subject: "s"})
	select {
	case m := <-n.ch:
		if m.To != "a@x.com" {
			t.Errorf("to = %q", m.To)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("SendAsync did not deliver")
	}
}

func TestLogNotifier(t *testing.T) {
	if err := (LogNotifier{}).Send(context.Background(), Message{To: "a@x.com", Subject: "s"}); err != nil {
		t.Errorf("LogNotifier.Send: %v", err)
	}
	if err := (LogNotifier{}).Send(context.Background(), Message{}); err == nil {
		t.Error("LogNotifier should validate")
	}
}
