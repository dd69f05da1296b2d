// Worker delivers queued emails, forwards audit events to Loki, and sweeps expired login tickets,
// refresh tokens and reset requests. Set DATABASE_URL; KAFKA_BROKERS enables the consumers,
// LOKI_URL the audit forwarder and SMTP_HOST real delivery.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"

	"tenant-identity/backend/internal/config"
	"tenant-identity/backend/internal/db"
	"tenant-identity/backend/internal/notification"
	"tenant-identity/backend/internal/passwordreset"
	resetrepo "tenant-identity/backend/internal/passwordreset/repository"
	"tenant-identity/backend/internal/session"
	sessionrepo "tenant-identity/backend/internal/session/repository"
	"tenant-identity/backend/internal/telemetry/loki"
	"tenant-identity/backend/internal/ticket"
	ticketrepo "tenant-identity/backend/internal/ticket/repository"
)

// sweeper removes rows past their expiry.
type sweeper interface {
	SweepExpired(ctx context.Context, before time.Time) (int64, error)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		log.Println("worker: shutting down...")
		cancel()
	}()

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	var wg sync.WaitGroup
	sweepers := map[string]sweeper{
		"login tickets":  ticket.NewIssuer(nil, nil, nil, ticketrepo.NewPostgresRepository(conn), nil, cfg.TicketTTL()),
		"refresh tokens": session.NewTokenStore(sessionrepo.NewPostgresRepository(conn), cfg.RefreshTTL()),
		"reset requests": passwordreset.NewFlow(nil, resetrepo.NewPostgresRepository(conn), nil, nil, nil, cfg.ResetTTL(), ""),
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		runSweeper(ctx, cfg.SweepIntervalDuration(), sweepers)
	}()

	brokers := cfg.KafkaBrokersList()
	if len(brokers) == 0 {
		log.Println("worker: KAFKA_BROKERS not set; only sweeping")
		wg.Wait()
		return
	}

	var mailer notification.Notifier = notification.LogNotifier{}
	if cfg.SMTPHost != "" {
		m, err := notification.NewSMTPMailer(notification.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		})
		if err != nil {
			log.Fatalf("smtp: %v", err)
		}
		mailer = m
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		consume(ctx, newReader(brokers, cfg.NotifyKafkaTopic, cfg.KafkaGroupID), func(ctx context.Context, value []byte) error {
			msg, err := notification.DecodeMessage(value)
			if err != nil {
				// malformed jobs are dropped; retrying cannot fix them
				log.Printf("worker: dropping notification: %v", err)
				return nil
			}
			return mailer.Send(ctx, msg)
		})
	}()

	if cfg.LokiURL != "" {
		client, err := loki.NewClient(cfg.LokiURL, nil)
		if err != nil {
			log.Fatalf("loki: %v", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			consume(ctx, newReader(brokers, cfg.AuditKafkaTopic, cfg.KafkaGroupID), client.PushEventJSON)
		}()
	}

	log.Printf("worker: consuming %s and %s", cfg.NotifyKafkaTopic, cfg.AuditKafkaTopic)
	wg.Wait()
	log.Println("worker: stopped")
}

func newReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID + "-" + topic,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		MaxWait:        1 * time.Second,
		CommitInterval: time.Second,
	})
}

func consume(ctx context.Context, reader *kafka.Reader, handle func(context.Context, []byte) error) {
	defer reader.Close()
	topic := reader.Config().Topic
	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("worker: kafka read error on %s: %v", topic, err)
			continue
		}
		hctx, hcancel := context.WithTimeout(ctx, 10*time.Second)
		if err := handle(hctx, msg.Value); err != nil {
			log.Printf("worker: %s: handle message: %v", topic, err)
		}
		hcancel()
	}
}

func runSweeper(ctx context.Context, interval time.Duration, sweepers map[string]sweeper) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		now := time.Now().UTC()
		for name, s := range sweepers {
			n, err := s.SweepExpired(ctx, now)
			if err != nil {
				log.Printf("worker: sweep %s: %v", name, err)
				continue
			}
			if n > 0 {
				log.Printf("worker: swept %d expired %s", n, name)
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
