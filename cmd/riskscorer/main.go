package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"adaptivemfa/internal/config"
	"adaptivemfa/internal/db"
	"adaptivemfa/internal/db/migrate"
	"adaptivemfa/internal/eventbus"
	"adaptivemfa/internal/riskscorer/engine"
	"adaptivemfa/internal/riskscorer/handler"
	"adaptivemfa/internal/riskscorer/loginattempt"
	"adaptivemfa/internal/riskscorer/migrations"
	"adaptivemfa/internal/riskscorer/service"
	"adaptivemfa/internal/riskscorer/verifyclient"
)

// loginAttemptedConsumerGroup is the Kafka consumer group the Risk Scorer joins to
// ingest failed login attempts off auth_events; stable so a restart resumes rather than
// replaying the whole topic.
const loginAttemptedConsumerGroup = "riskscorer-login-attempted"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	database, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer database.Close()

	if err := migrate.Run(migrations.FS, ".", cfg.DatabaseURL, "up"); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	attemptRepo := loginattempt.NewRepository(database)

	if cfg.MFAArbiterURL == "" {
		log.Print("MFA_ARBITER_URL not set: historical successes cannot be verified, scoring fails for accounts with a successful prior attempt")
	}
	verifier := verifyclient.New(cfg.MFAArbiterURL, cfg.UpstreamTimeoutDuration())
	scorer := engine.NewEngine(verifier)

	producer := eventbus.NewProducer(cfg.KafkaBrokersList(), eventbus.TopicRiskEvents)
	if producer == nil {
		log.Print("KAFKA_BROKERS not set: risk.scored events will not be published")
	}
	defer producer.Close()

	svc := service.New(attemptRepo, scorer, producer)
	h := handler.New(svc)

	authConsumer := eventbus.NewConsumer(cfg.KafkaBrokersList(), eventbus.TopicAuthEvents, loginAttemptedConsumerGroup)
	if authConsumer == nil {
		log.Print("KAFKA_BROKERS not set: failed login attempts will not be ingested from auth_events")
	}
	consumeCtx, stopConsuming := context.WithCancel(context.Background())
	go authConsumer.Run(consumeCtx, func(routingKey string, payload []byte) error {
		if routingKey != eventbus.RoutingKeyLoginAttempted {
			return nil
		}
		var evt eventbus.LoginAttempted
		if err := json.Unmarshal(payload, &evt); err != nil {
			return err
		}
		return svc.IngestLoginAttempted(consumeCtx, evt)
	})

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	h.Register(r)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	go func() {
		log.Printf("risk scorer listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("serve: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("shutting down risk scorer...")
	stopConsuming()
	if err := authConsumer.Close(); err != nil {
		log.Printf("consumer shutdown: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	log.Println("risk scorer stopped")
}
