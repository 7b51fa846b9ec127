// bikecatalog catalog-service
//
// Bicycle catalog REST API plus the scrape-review reconciliation workflow.
// Exposes:
//   - the public catalog (bicycles, components, brands, manufacturers)
//   - the admin review queue for scraped records
//   - applyChanges(bicycleId, changes): transactional merge of approved deltas
//
// The review workflow is also served over gRPC (bikecatalog.review.v1).
// Publishes EVENT_REVIEW_* and EVENT_BICYCLE_UPDATED to Redis.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"

	"bikecatalog/catalog-service/internal/catalog"
	"bikecatalog/catalog-service/internal/config"
	"bikecatalog/catalog-service/internal/db"
	"bikecatalog/catalog-service/internal/events"
	"bikecatalog/catalog-service/internal/grpcserver"
	"bikecatalog/catalog-service/internal/logging"
	"bikecatalog/catalog-service/internal/review"
	"bikecatalog/catalog-service/internal/scheduler"
)

const version = "1.0.0"

func main() {
	// ── Config ──────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		logging.Default().Fatal().Err(err).Msg("config error")
	}

	log := logging.Configure(cfg.LogLevel, cfg.LogFormat).
		With().Str("service", "catalog-service").Logger()
	logging.SetDefault(log)

	ctx, cancel := context.WithCancel(logging.WithLogger(context.Background(), log))
	defer cancel()

	// ── PostgreSQL ───────────────────────────────────────────────────────────
	log.Info().Msg("connecting to PostgreSQL")
	pool, err := db.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()
	log.Info().Msg("PostgreSQL connected")

	// ── Redis ────────────────────────────────────────────────────────────────
	log.Info().Msg("connecting to Redis")
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("redis")
	}
	defer rdb.Close()
	log.Info().Msg("Redis connected")

	pub := events.NewRedisPublisher(rdb)
	catalogSvc := catalog.NewService(pool)
	reviewSvc := review.NewService(review.NewPostgresStore(pool), pub)

	// ── HTTP server ──────────────────────────────────────────────────────────
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	catalog.NewHandler(catalogSvc).RegisterRoutes(mux)
	review.NewHandler(reviewSvc).RegisterRoutes(mux)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      requestLogger(log, mux),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("version", version).Str("port", cfg.Port).Msg("HTTP listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	// ── gRPC server ──────────────────────────────────────────────────────────
	lis, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.GRPCPort))
	if err != nil {
		log.Fatal().Err(err).Str("port", cfg.GRPCPort).Msg("gRPC listen")
	}
	gs := grpc.NewServer(grpc.UnaryInterceptor(grpcLogger(log)))
	grpcserver.Register(gs, grpcserver.NewServer(reviewSvc))

	go func() {
		log.Info().Str("port", cfg.GRPCPort).Msg("gRPC listening")
		if err := gs.Serve(lis); err != nil {
			log.Fatal().Err(err).Msg("gRPC server error")
		}
	}()

	// ── Scheduler ────────────────────────────────────────────────────────────
	sched := scheduler.New(reviewSvc, pub, log, cfg.QueueReportInterval)
	if err := sched.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("scheduler")
	}

	// ── Graceful shutdown ────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	sched.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP shutdown error")
	}
	gs.GracefulStop()
	log.Info().Msg("stopped")
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "ok",
		"service": "catalog-service",
		"version": version,
	})
}

// requestLogger attaches a request-scoped logger to every request context
// and logs the request once it completes.
func requestLogger(log zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqLog := log.With().
			Str("request_id", uuid.NewString()).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Logger()

		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r.WithContext(logging.WithLogger(r.Context(), reqLog)))

		reqLog.Debug().
			Int("status", sw.status).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func grpcLogger(log zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		reqLog := log.With().
			Str("request_id", uuid.NewString()).
			Str("rpc", info.FullMethod).
			Logger()
		return handler(logging.WithLogger(ctx, reqLog), req)
	}
}
