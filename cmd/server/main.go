package main

import (
	"context"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"tenant-identity/backend/internal/audit"
	auditrepo "tenant-identity/backend/internal/audit/repository"
	companyrepo "tenant-identity/backend/internal/company/repository"
	"tenant-identity/backend/internal/config"
	"tenant-identity/backend/internal/db"
	healthhandler "tenant-identity/backend/internal/health/handler"
	identityhandler "tenant-identity/backend/internal/identity/handler"
	identityservice "tenant-identity/backend/internal/identity/service"
	membershiprepo "tenant-identity/backend/internal/membership/repository"
	"tenant-identity/backend/internal/notification"
	"tenant-identity/backend/internal/passwordreset"
	resetrepo "tenant-identity/backend/internal/passwordreset/repository"
	"tenant-identity/backend/internal/ratelimit"
	"tenant-identity/backend/internal/security"
	"tenant-identity/backend/internal/server"
	"tenant-identity/backend/internal/server/interceptors"
	"tenant-identity/backend/internal/session"
	sessionrepo "tenant-identity/backend/internal/session/repository"
	"tenant-identity/backend/internal/telemetry"
	telemetryotel "tenant-identity/backend/internal/telemetry/otel"
	"tenant-identity/backend/internal/telemetry/producer"
	"tenant-identity/backend/internal/ticket"
	ticketrepo "tenant-identity/backend/internal/ticket/repository"
	userrepo "tenant-identity/backend/internal/user/repository"
)

const healthProbeInterval = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	providers, err := telemetryotel.NewProviders(ctx, telemetryotel.Options{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: "tenant-identity",
		Environment: cfg.Env,
		Insecure:    cfg.OTLPInsecure,
		SampleRatio: cfg.TraceSampleRatio,
	})
	if err != nil {
		log.Fatalf("otel: %v", err)
	}
	providers.SetGlobal()
	metrics, err := telemetryotel.NewMetrics(providers.MeterProvider)
	if err != nil {
		log.Fatalf("otel metrics: %v", err)
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	privateKey, publicKey, err := security.LoadKeyPair(cfg.JWTPrivateKey, cfg.JWTPublicKey)
	if err != nil {
		log.Fatalf("jwt keys: %v", err)
	}
	if err := security.CheckSigningKey(publicKey); err != nil {
		if cfg.Env == "production" {
			log.Fatalf("jwt keys: %v", err)
		}
		log.Printf("jwt keys: %v (allowed outside production)", err)
	}
	tokens := security.NewTokenProvider(privateKey, publicKey, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL())
	hasher := security.NewHasher(cfg.BcryptCost)

	emitters := []telemetry.EventEmitter{telemetryotel.NewEventEmitter(providers.LoggerProvider)}
	var notifier notification.Notifier = notification.LogNotifier{}
	brokers := cfg.KafkaBrokersList()
	auditProducer, err := producer.NewKafkaProducer(brokers, cfg.AuditKafkaTopic)
	if err != nil {
		log.Fatalf("kafka audit producer: %v", err)
	}
	if auditProducer != nil {
		defer auditProducer.Close()
		emitters = append(emitters, auditProducer)
	}
	notifyProducer, err := producer.NewKafkaProducer(brokers, cfg.NotifyKafkaTopic)
	if err != nil {
		log.Fatalf("kafka notify producer: %v", err)
	}
	if notifyProducer != nil {
		defer notifyProducer.Close()
		notifier = notification.NewKafkaNotifier(notifyProducer)
	}
	emitter := telemetry.Fanout(emitters...)
	auditLogger := audit.NewLogger(auditrepo.NewPostgresRepository(conn), interceptors.ClientIP, emitter)

	users := userrepo.NewPostgresRepository(conn)
	companies := companyrepo.NewPostgresRepository(conn)
	memberships := membershiprepo.NewPostgresRepository(conn)
	issuer := ticket.NewIssuer(users, memberships, companies, ticketrepo.NewPostgresRepository(conn), hasher, cfg.TicketTTL()).
		WithAuditLogger(auditLogger)
	sessions := session.NewTokenStore(sessionrepo.NewPostgresRepository(conn), cfg.RefreshTTL())
	resets := passwordreset.NewFlow(users, resetrepo.NewPostgresRepository(conn), hasher, sessions, notifier, cfg.ResetTTL(), cfg.PasswordResetURL).
		WithAuditLogger(auditLogger)
	auth := identityservice.NewAuthService(users, memberships, companies, issuer, sessions, resets, tokens).
		WithRotation(cfg.RefreshRotation).
		WithAuditLogger(auditLogger)

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()
	base := ratelimit.Limit{
		Capacity:     cfg.RateLimitCapacity,
		RefillTokens: cfg.RateLimitRefillTokens,
		RefillPeriod: cfg.RateLimitRefillPeriodDuration(),
	}
	policies := ratelimit.DefaultPolicies(base, cfg.RateLimitAllowlistMultiplier)
	gate := ratelimit.NewGate(ratelimit.NewRedisBuckets(rdb), policies, policies[ratelimit.OpRequestTicket], cfg.RateLimitTimeoutDuration()).
		WithAllowlist(cfg.RateLimitAllowlistEntries())

	proxies, err := interceptors.NewProxyResolver(cfg.TrustedProxyEntries())
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	health := healthhandler.NewServer(map[string]healthhandler.Pinger{
		"postgres": conn,
		"redis":    healthhandler.RedisPinger{Client: rdb},
	}, identityhandler.ServiceName)
	go health.Run(ctx, healthProbeInterval)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatalf("listen: %v", err)
	}
	defer lis.Close()

	s := server.NewServer(server.Deps{
		Auth:           auth,
		Memberships:    memberships,
		Metrics:        metrics,
		Health:         health,
		Tokens:         tokens,
		Limiter:        gate,
		AuditLogger:    auditLogger,
		Emitter:        emitter,
		Proxies:        proxies,
		RequestTimeout: cfg.RequestTimeoutDuration(),
	})

	go func() {
		log.Printf("gRPC server listening on %s", cfg.GRPCAddr)
		if err := s.Serve(lis); err != nil {
			log.Fatalf("serve: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("shutting down gRPC server...")
	cancel()
	s.GracefulStop()
	drainCtx, drainCancel := context.WithTimeout(context.Background(), telemetry.ShutdownDrainDuration)
	if err := telemetry.Drain(drainCtx); err != nil {
		log.Printf("telemetry: drain: %v (%d events dropped)", err, telemetry.Dropped())
	}
	drainCancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Printf("otel shutdown: %v", err)
	}
	log.Println("gRPC server stopped")
}
