package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/ortaieb/scavenger-hunt-game/internal/client/audit"
	"github.com/ortaieb/scavenger-hunt-game/internal/client/evidence"
	"github.com/ortaieb/scavenger-hunt-game/internal/client/imagecheck"
	"github.com/ortaieb/scavenger-hunt-game/internal/config"
	"github.com/ortaieb/scavenger-hunt-game/internal/handler"
	"github.com/ortaieb/scavenger-hunt-game/internal/repository"
	"github.com/ortaieb/scavenger-hunt-game/internal/service"
	"github.com/ortaieb/scavenger-hunt-game/pkg/db"
	"github.com/ortaieb/scavenger-hunt-game/pkg/logger"
	"github.com/ortaieb/scavenger-hunt-game/pkg/metrics"
)

func main() {
	log := logger.NewLogger("challenge-service")
	log.Info("Starting Challenge Service...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration: ", err)
	}

	// Initialize database connection
	conn, err := db.NewConnection(db.Config{
		Host:            cfg.DBHost,
		Port:            cfg.DBPort,
		User:            cfg.DBUser,
		Password:        cfg.DBPassword,
		Database:        cfg.DBName,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	})
	if err != nil {
		log.Fatal("Failed to connect to database: ", err)
	}
	defer conn.Close()

	log.Info("Database connected")

	if err := db.NewSchemaGuard(conn.DB).ValidateTables(repository.ExpectedSchemas()); err != nil {
		log.Fatal("Schema validation failed: ", err)
	}

	// Initialize Redis for the challenge id allocator
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	defer redisClient.Close()

	serviceMetrics := metrics.NewMetrics("challenge")

	// Initialize repositories
	versionRepo := repository.NewChallengeVersionRepository(conn.DB)
	participantRepo := repository.NewParticipantRepository(conn.DB)
	idAllocator := repository.NewRedisChallengeIDAllocator(redisClient)

	// Initialize collaborator clients
	verifier := imagecheck.New(cfg.ImageCheckerURL, cfg.EvidenceBaseDir, serviceMetrics)
	evidenceStore := evidence.NewFTPStore(cfg.FTPHost, cfg.FTPPort, cfg.FTPUser, cfg.FTPPassword)
	defer evidenceStore.Close()

	var auditor *audit.Emitter
	if cfg.AuditURL != "" {
		auditor = audit.NewEmitter(audit.NewClient(cfg.AuditURL), log)
		log.Info("Audit collaborator configured: ", cfg.AuditURL)
	} else {
		log.Warn("AUDIT_URL not set - audit events disabled")
	}

	// Initialize services
	locationService := service.NewLocationService()
	challengeService := service.NewChallengeService(versionRepo, participantRepo, idAllocator, auditor, serviceMetrics, log)
	participantService := service.NewParticipantService(participantRepo, versionRepo, locationService, verifier, evidenceStore, auditor, serviceMetrics, log)

	// Mount the API
	apiMux := http.NewServeMux()
	handler.Register(apiMux,
		handler.NewChallengeHandler(challengeService, log),
		handler.NewParticipantHandler(participantService, log),
	)

	apiServer := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: apiMux,
	}

	go func() {
		log.Info("API listening on port ", cfg.HTTPPort)
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to serve API: ", err)
		}
	}()

	// Periodically export DB pool stats
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats := conn.DB.Stats()
				serviceMetrics.RecordDBPoolStats(stats.OpenConnections, stats.InUse, stats.Idle, stats.WaitCount, stats.WaitDuration)
			}
		}
	}()

	// Expose metrics and health endpoints
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := conn.Ping(); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	server := &http.Server{
		Addr:    ":" + cfg.MetricsPort,
		Handler: mux,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		log.Info("Shutting down gracefully...")
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		apiServer.Shutdown(shutdownCtx)
		server.Shutdown(shutdownCtx)
		log.Info("Shutdown complete")
	}()

	log.Info("Challenge Service started, metrics on port ", cfg.MetricsPort)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal("Failed to serve: ", err)
	}
}
