// main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"friendsnav/api"
	"friendsnav/broker"
	"friendsnav/config"
	"friendsnav/db"
	"friendsnav/eta"
	"friendsnav/hub"
	"friendsnav/presence"
	"friendsnav/routing"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "path to the YAML configuration file")
	flag.Parse()

	log.SetOutput(os.Stdout)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// --- Initialization ---
	store, err := newStore(cfg.Store)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	log.Printf("Team store %s ready.", cfg.Store.Backend)

	engine := eta.NewEngine(newRouter(cfg.Routing), eta.Options{
		Timeout:       cfg.Routing.Timeout(),
		MaxConcurrent: cfg.Routing.MaxConcurrent,
	})

	var publisher hub.ViewPublisher
	var amqpPublisher *broker.Publisher
	if cfg.Broker.URL != "" {
		amqpPublisher, err = broker.Dial(cfg.Broker.URL, cfg.Broker.Exchange)
		if err != nil {
			log.Fatalf("Failed to connect to broker: %v", err)
		}
		publisher = amqpPublisher
	}

	var hubInstance *hub.Hub
	synchronizer := presence.New(store, presence.Options{
		MinReportInterval: cfg.Presence.MinReportInterval(),
		WriteTimeout:      cfg.Store.Timeout(),
		OnNotice: func(teamID, memberID string, err error) {
			hubInstance.Notice(teamID, memberID, err)
		},
	})
	hubInstance = hub.NewHub(synchronizer, engine, publisher)

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		Immutable:             true,
	})
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New())

	// --- Static Files & API Endpoints ---
	if cfg.Server.StaticDir != "" {
		app.Static("/", cfg.Server.StaticDir)
	}

	server := &api.Server{
		Sync:     synchronizer,
		Engine:   engine,
		Hub:      hubInstance,
		Presence: cfg.Presence,
	}
	server.Register(app)

	go func() {
		addr := fmt.Sprintf("0.0.0.0:%d", cfg.Server.Port)
		var err error
		if cfg.Server.CertFile != "" {
			log.Printf("Starting server on https://%s", addr)
			err = app.ListenTLS(addr, cfg.Server.CertFile, cfg.Server.KeyFile)
		} else {
			log.Printf("Starting server on http://%s", addr)
			err = app.Listen(addr)
		}
		if err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down...")

	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		log.Printf("Server shutdown: %v", err)
	}
	hubInstance.Close()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := store.Close(ctx); err != nil {
		log.Printf("Store close: %v", err)
	}
	if amqpPublisher != nil {
		if err := amqpPublisher.Close(); err != nil {
			log.Printf("Broker close: %v", err)
		}
	}
	log.Println("Server stopped")
}

func newStore(cfg config.StoreConfig) (db.Store, error) {
	if cfg.Backend == "mongo" {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout())
		defer cancel()
		store, err := db.NewMongoStore(ctx, cfg.MongoURI, cfg.Database, cfg.Timeout())
		if err != nil {
			return nil, err
		}
		return store, nil
	}
	return db.NewMemoryStore(), nil
}

func newRouter(cfg config.RoutingConfig) routing.Provider {
	if cfg.Provider == "mapbox" {
		return routing.NewMapbox(cfg.BaseURL, cfg.AccessToken, cfg.Profile, cfg.Timeout())
	}
	return routing.NewOSRM(cfg.BaseURL, cfg.Profile, cfg.Timeout())
}
