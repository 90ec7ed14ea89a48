package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/httprate"

	config "github.com/avvvet/healthcard-services/configs"
	"github.com/avvvet/healthcard-services/internal/cardsvc/artifact"
	"github.com/avvvet/healthcard-services/internal/cardsvc/broker"
	"github.com/avvvet/healthcard-services/internal/cardsvc/codeimage"
	cardcfg "github.com/avvvet/healthcard-services/internal/cardsvc/config"
	"github.com/avvvet/healthcard-services/internal/cardsvc/db"
	handlers "github.com/avvvet/healthcard-services/internal/cardsvc/handlers"
	"github.com/avvvet/healthcard-services/internal/cardsvc/service"
	"github.com/avvvet/healthcard-services/internal/cardsvc/store"
	"github.com/avvvet/healthcard-services/internal/cardsvc/web"
	nats "github.com/avvvet/healthcard-services/internal/nats"
	log "github.com/sirupsen/logrus"
)

const SERVICE_NAME = "card"

var instanceId string

func init() {
	config.LoadEnv(SERVICE_NAME)
	instanceId = config.CreateUniqueInstance(SERVICE_NAME)
	config.Logging(SERVICE_NAME + "_service_" + instanceId)
}

func newStorage(ctx context.Context, cfg cardcfg.Config) (artifact.Storage, error) {
	if cfg.StorageBackend == "minio" {
		return artifact.NewMinioStorage(ctx, artifact.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			Secure:    cfg.MinioSecure,
		})
	}
	return artifact.NewDiskStorage(cfg.StorageRoot)
}

func main() {
	cfg := cardcfg.Load()
	ctx := context.Background()

	// pg connection
	dbpool, err := db.Connect(ctx, cfg.DBUrl)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer dbpool.Close()
	log.Printf("pg connection established successfully")

	if err := db.Migrate(ctx, dbpool); err != nil {
		log.Fatalf("Failed to migrate DB: %v", err)
	}

	files, err := newStorage(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to init %s artifact storage: %v", cfg.StorageBackend, err)
	}
	log.Infof("artifact storage backend: %s", cfg.StorageBackend)

	// optional event stream; a nil publisher disables it
	var events service.EventPublisher
	if cfg.NatsEnabled {
		n, err := nats.Connect(cfg.NatsUrl, cfg.NatsToken, SERVICE_NAME+"_service_"+instanceId)
		if err != nil {
			log.Fatalf("Error: unable to connect to NATS server %v", err)
		}
		defer n.Conn.Close()
		log.Printf("NATS connection established successfully %s", n.Url)
		events = broker.NewBroker(n.Conn, instanceId)
	}

	cardStore := store.NewCardStore(dbpool)
	cardService := service.NewCardService(cardStore, files, codeimage.NewGenerator(cfg.QRSize), events)

	pages, err := web.NewRenderer()
	if err != nil {
		log.Fatalf("Failed to parse templates: %v", err)
	}

	// Setup router
	r := chi.NewRouter()
	c := config.CORS(cfg.CORSOrigins)

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(config.CustomLoggerMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(c.Handler)

	// to protect the service api from any over requests
	r.Use(httprate.LimitByIP(cfg.RateLimit, 1*time.Minute))

	// Init handlers and routes
	h := handlers.NewHandler(cardService, files, pages, handlers.Options{
		PublicBaseURL:  cfg.PublicBaseURL,
		MaxUploadBytes: cfg.MaxUploadMB << 20,
		Instance:       instanceId,
	})
	h.InitAuth(cfg.JWTSecret)
	h.SetRoutes(r)

	// Create server with timeout settings
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("ListenAndServe(): %v", err)
		}
	}()
	log.Infof("%s service running at port %s", SERVICE_NAME, server.Addr)

	// Wait for interrupt signal to gracefully shutdown the server
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorf("%s service shutdown Failed:%+v", SERVICE_NAME, err)
		return
	}
	log.Infof("%s service gracefully stopped", SERVICE_NAME)
}
