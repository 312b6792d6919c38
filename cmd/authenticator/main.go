package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"adaptivemfa/internal/authenticator/credential"
	"adaptivemfa/internal/authenticator/geolocation"
	"adaptivemfa/internal/authenticator/handler"
	"adaptivemfa/internal/authenticator/mfaclient"
	"adaptivemfa/internal/authenticator/migrations"
	"adaptivemfa/internal/authenticator/riskclient"
	"adaptivemfa/internal/authenticator/service"
	"adaptivemfa/internal/authenticator/user"
	"adaptivemfa/internal/cache"
	"adaptivemfa/internal/config"
	"adaptivemfa/internal/db"
	"adaptivemfa/internal/db/migrate"
	"adaptivemfa/internal/eventbus"
	"adaptivemfa/internal/security"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET must be set")
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

	users := user.NewRepository(database)
	credentials := credential.NewRepository(database)
	hasher := security.NewHasher(cfg.BcryptCost)
	tokens := security.NewTokenProvider(cfg.JWTSecret, cfg.JWTTokenTTL())
	geo := geolocation.New(cacheClient, cfg.GeolocationProviderURL, cfg.UpstreamTimeoutDuration())
	risk := riskclient.New(cfg.RiskScorerURL, cfg.UpstreamTimeoutDuration())
	mfa := mfaclient.New(cfg.MFAArbiterURL, cfg.UpstreamTimeoutDuration())

	producer := eventbus.NewProducer(cfg.KafkaBrokersList(), eventbus.TopicAuthEvents)
	if producer == nil {
		log.Print("KAFKA_BROKERS not set: login.attempted events will not be published")
	}
	defer producer.Close()

	svc := service.New(users, credentials, cacheClient, hasher, tokens, geo, risk, mfa, producer)
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
		log.Printf("authenticator listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("serve: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("shutting down authenticator...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	log.Println("authenticator stopped")
}
