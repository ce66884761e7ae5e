package apiserver

import (
	"context"
	"net/http"
	"time"

	"gorm.io/gorm"
)

// HealthHandler 报告服务和数据库连接状态，供负载均衡探活使用。
type HealthHandler struct {
	db *gorm.DB
}

func NewHealthHandler(db *gorm.DB) *HealthHandler {
	return &HealthHandler{db: db}
}

func (h *HealthHandler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	sqlDB, err := h.db.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, map[string]string{
			"status":   "unhealthy",
			"database": "disconnected",
			"error":    err.Error(),
		})
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]string{
		"status":      "healthy",
		"database":    "connected",
		"application": "running",
	})
}
