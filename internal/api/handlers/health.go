package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type HealthHandler struct {
	db        *gorm.DB
	redis     *redis.Client
	inspector *asynq.Inspector
}

// NewHealthHandler builds the handler. redis and inspector may be nil when
// rendering runs in-process.
func NewHealthHandler(db *gorm.DB, redis *redis.Client, inspector *asynq.Inspector) *HealthHandler {
	return &HealthHandler{db: db, redis: redis, inspector: inspector}
}

type HealthResponse struct {
	Status   string            `json:"status"`
	Services map[string]string `json:"services"`
	Queues   map[string]int    `json:"queues,omitempty"`
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	resp := HealthResponse{Status: "healthy", Services: make(map[string]string)}

	sqlDB, err := h.db.DB()
	if err != nil || sqlDB.PingContext(ctx) != nil {
		resp.Services["database"] = "unhealthy"
		resp.Status = "unhealthy"
	} else {
		resp.Services["database"] = "healthy"
	}

	if h.redis != nil {
		if err := h.redis.Ping(ctx).Err(); err != nil {
			resp.Services["redis"] = "unhealthy"
			resp.Status = "unhealthy"
		} else {
			resp.Services["redis"] = "healthy"
		}
	}

	// Queue depth is informational; a failing inspector does not fail the check.
	if h.inspector != nil {
		if queues, err := h.inspector.Queues(); err == nil {
			resp.Queues = make(map[string]int, len(queues))
			for _, q := range queues {
				if info, err := h.inspector.GetQueueInfo(q); err == nil {
					resp.Queues[q] = info.Pending
				}
			}
		}
	}

	statusCode := http.StatusOK
	if resp.Status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(resp)
}

func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
