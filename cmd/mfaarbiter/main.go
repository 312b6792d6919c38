package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/gin-gonic/gin"

	"adaptivemfa/internal/cache"
	"adaptivemfa/internal/config"
	"adaptivemfa/internal/db"
	"adaptivemfa/internal/db/migrate"
	"adaptivemfa/internal/eventbus"
	"adaptivemfa/internal/mfaarbiter/decision"
	"adaptivemfa/internal/mfaarbiter/email"
	"adaptivemfa/internal/mfaarbiter/handler"
	"adaptivemfa/internal/mfaarbiter/migrations"
	"adaptivemfa/internal/mfaarbiter/otplog"
	"adaptivemfa/internal/mfaarbiter/service"
	"adaptivemfa/internal/mfaarbiter/trusteddevice"
)

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

	cacheClient := cache.New(cfg.CacheAddr, cfg.CachePassword, cfg.CacheDB)
	if err := cacheClient.Ping(context.Background()); err != nil {
		log.Fatalf("cache: %v", err)
	}
	defer cacheClient.Close()

	trustedRepo := trusteddevice.NewRepository(database)
	otpLogRepo := otplog.NewRepository(database)
	evaluator := decision.NewEvaluator()

	var sender service.Sender
	if cfg.SESSenderAddress == "" || cfg.Env == "development" {
		log.Print("SES_SENDER_ADDRESS not set or APP_ENV=development: OTP codes will be logged, not emailed")
		sender = email.NewLocalSender()
	} else {
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(cfg.SESRegion))
		if err != nil {
			log.Fatalf("aws config: %v", err)
		}
		sender = email.NewSESSender(ses.NewFromConfig(awsCfg), cfg.SESSenderAddress)
	}

	producer := eventbus.NewProducer(cfg.KafkaBrokersList(), eventbus.TopicMFAEvents)
	if producer == nil {
		log.Print("KAFKA_BROKERS not set: mfa.completed events will not be published")
	}
	defer producer.Close()

	svc := service.New(cacheClient, trustedRepo, otpLogRepo, evaluator, sender, producer, cfg.RiskThreshold, cfg.TrustedDeviceTTL())
	h := handler.New(svc)

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
		log.Printf("mfa arbiter listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("serve: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("shutting down mfa arbiter...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	log.Println("mfa arbiter stopped")
}
