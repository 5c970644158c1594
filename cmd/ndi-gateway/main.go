package main

import (
	"context"
	"log"
	"os"

	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/redis/go-redis/v9"

	"github.com/formbt/ndi-gateway/adapters/events"
	"github.com/formbt/ndi-gateway/adapters/provider"
	"github.com/formbt/ndi-gateway/adapters/store"
	"github.com/formbt/ndi-gateway/adapters/tokenizer"
	"github.com/formbt/ndi-gateway/channel"
	"github.com/formbt/ndi-gateway/service"
	"github.com/formbt/ndi-gateway/transport/http"
)

func main() {
	// Generate a new ECDSA key pair (you would normally load this from somewhere secure)
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		panic(err)
	}

	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		redisURL = "redis://localhost:6379/0"
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Fatalf("Failed to parse Redis URL: %v", err)
	}
	redisClient := redis.NewClient(opts)

	logger := watermill.NewStdLogger(false, false)
	publisher, err := redisstream.NewPublisher(
		redisstream.PublisherConfig{
			Client: redisClient,
		},
		logger,
	)
	if err != nil {
		log.Fatalf("Failed to create Redis publisher: %v", err)
	}

	// An empty consumer group makes every instance see every event, which is
	// what the per-instance hubs need.
	subscriber, err := redisstream.NewSubscriber(
		redisstream.SubscriberConfig{
			Client:        redisClient,
			ConsumerGroup: "",
		},
		logger,
	)
	if err != nil {
		log.Fatalf("Failed to create Redis subscriber: %v", err)
	}

	ndiClient := provider.NewClient(provider.Config{
		AuthURL:      os.Getenv("NDI_AUTH_URL"),
		BaseURL:      os.Getenv("NDI_BASE_URL"),
		ClientID:     os.Getenv("NDI_CLIENT_ID"),
		ClientSecret: os.Getenv("NDI_CLIENT_SECRET"),
		WebhookID:    os.Getenv("NDI_WEBHOOK_ID"),
		WebhookURL:   os.Getenv("NDI_WEBHOOK_URL"),
		WebhookToken: os.Getenv("NDI_WEBHOOK_TOKEN"),
	})

	jwtTokenizer := tokenizer.NewJWTTokenizer(privateKey)
	redisStore := store.NewRedisStore(redisClient)
	bus := events.NewWatermillBus(publisher, subscriber)

	hub := channel.NewHub()
	go func() {
		if err := hub.Run(context.Background(), bus); err != nil {
			log.Printf("event hub stopped: %v", err)
		}
	}()

	guard := service.NewRegistrationGuard()
	registration := service.NewRegistrationService(redisStore, guard)
	binder := service.NewSessionBinder(jwtTokenizer, redisStore, registration)
	authService := service.NewAuthService(jwtTokenizer, redisStore, redisStore, binder, guard)

	router := http.SetupRouter(http.Dependencies{
		Issuer:       ndiClient,
		Proofs:       redisStore,
		Registration: registration,
		Binder:       binder,
		Auth:         authService,
		Users:        redisStore,
		Bus:          bus,
		Hub:          hub,
	})

	addr := os.Getenv("LISTEN_ADDR")
	if addr == "" {
		addr = ":9000"
	}
	if err := router.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
