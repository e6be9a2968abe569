package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	r "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/SirClappington/resq/internal/config"
	"github.com/SirClappington/resq/internal/domain"
	"github.com/SirClappington/resq/internal/logger"
	"github.com/SirClappington/resq/internal/storage"
	"github.com/SirClappington/resq/internal/stream"
)

func main() {
	cfg := config.Load()
	logg, err := logger.New(cfg.LogJSON, cfg.Debug)
	if err != nil {
		log.Fatalf("creating a logger: %v", err)
	}
	ctx := context.Background()

	rdb := r.NewClient(&r.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	q := stream.New(rdb)

	var repo storage.Repository
	switch cfg.Repository {
	case "memory":
		repo = storage.NewMemory()
	default:
		if err := storage.Migrate(cfg.PostgresDSN, "migrations"); err != nil {
			logg.Fatal("applying migrations", zap.Error(err))
		}
		pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
		if err != nil {
			logg.Fatal("connecting to postgres", zap.Error(err))
		}
		repo = storage.New(pool)
	}

	rtr := chi.NewRouter()

	rtr.Post("/v1/assessments", func(w http.ResponseWriter, req *http.Request) {
		var payload domain.JobPayload
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, errors.Wrap(err, "decoding payload"))
			return
		}
		if payload.JobPayload == nil {
			writeError(w, http.StatusBadRequest, errors.New("job_payload is required"))
			return
		}
		id, err := q.Add(req.Context(), payload, payload.IdempotencyKey)
		if err != nil {
			logg.Error("enqueueing job", zap.Error(err))
			writeError(w, http.StatusInternalServerError, errors.New("enqueue failed"))
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{"stream_id": id})
	})

	rtr.Get("/v1/assessments/{id}", func(w http.ResponseWriter, req *http.Request) {
		rec, err := repo.GetAssessment(req.Context(), chi.URLParam(req, "id"))
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				writeError(w, http.StatusNotFound, err)
				return
			}
			logg.Error("fetching assessment", zap.Error(err))
			writeError(w, http.StatusInternalServerError, errors.New("lookup failed"))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"id":          rec.ID,
			"job_id":      rec.JobID,
			"resume_id":   rec.ResumeID,
			"final_score": rec.FinalScore,
			"results":     json.RawMessage(rec.Results),
			"created_at":  rec.CreatedAt,
		})
	})

	rtr.Get("/v1/assessments/{id}/history", func(w http.ResponseWriter, req *http.Request) {
		items, err := repo.ListHistory(req.Context(), chi.URLParam(req, "id"), 50)
		if err != nil {
			logg.Error("fetching history", zap.Error(err))
			writeError(w, http.StatusInternalServerError, errors.New("lookup failed"))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"history": items})
	})

	rtr.Get("/v1/dlq", func(w http.ResponseWriter, req *http.Request) {
		letters, err := q.ReadDLQ(req.Context(), 100)
		if err != nil {
			logg.Error("reading dlq", zap.Error(err))
			writeError(w, http.StatusInternalServerError, errors.New("dlq read failed"))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"entries": letters})
	})

	logg.Info("api listening", zap.String("addr", cfg.APIAddr))
	if err := http.ListenAndServe(cfg.APIAddr, rtr); err != nil {
		logg.Fatal("serving api", zap.Error(err))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}
