package internal

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// Pinger 可做健康檢查的持久化後端
type Pinger interface {
	Ping(ctx context.Context) error
}

// healthTimeout 健康檢查等待資料庫的上限
const healthTimeout = 2 * time.Second

// Handler HTTP 請求處理器（健康檢查與統計）
type Handler struct {
	coord  *Coordinator
	bridge *Bridge
	db     Pinger
	logger *slog.Logger
}

// NewHandler 創建 HTTP 處理器；bridge 與 db 可為 nil（未啟用）
func NewHandler(coord *Coordinator, bridge *Bridge, db Pinger, logger *slog.Logger) *Handler {
	return &Handler{
		coord:  coord,
		bridge: bridge,
		db:     db,
		logger: logger,
	}
}

// Routes 設定路由
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	// 中間件鏈
	wrap := func(handler http.HandlerFunc) http.HandlerFunc {
		return h.recoverer(h.loggerMiddleware(handler))
	}

	mux.HandleFunc("GET /health", wrap(h.health))
	mux.HandleFunc("GET /stats", wrap(h.stats))

	return mux
}

// health 資料庫不可用時回 503，協調服務本身仍在運作
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":   "ok",
		"time":     time.Now().Unix(),
		"postgres": "disabled",
	}
	status := http.StatusOK

	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		if err := h.db.Ping(ctx); err != nil {
			h.logger.Warn("資料庫健康檢查失敗", "error", err)
			resp["status"] = "degraded"
			resp["postgres"] = "unavailable"
			status = http.StatusServiceUnavailable
		} else {
			resp["postgres"] = "ok"
		}
	}

	h.jsonResponse(w, resp, status)
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	stats := h.coord.Stats()
	if h.bridge != nil {
		stats["chat_delivered"] = h.bridge.Delivered()
		stats["chat_dropped"] = h.bridge.Dropped()
	}
	h.jsonResponse(w, stats, http.StatusOK)
}

// jsonResponse 返回 JSON 響應
func (h *Handler) jsonResponse(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("編碼 JSON 失敗", "error", err)
	}
}

// errorResponse 返回錯誤響應
func (h *Handler) errorResponse(w http.ResponseWriter, message string, status int) {
	h.jsonResponse(w, map[string]any{
		"error": message,
	}, status)
}

// loggerMiddleware 日誌中間件
func (h *Handler) loggerMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next(ww, r)

		h.logger.Debug("HTTP 請求",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.statusCode,
			"duration", time.Since(start))
	}
}

// recoverer panic 恢復中間件
func (h *Handler) recoverer(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				h.logger.Error("處理請求時發生 panic",
					"error", err,
					"method", r.Method,
					"path", r.URL.Path)

				h.errorResponse(w, "Internal error", http.StatusInternalServerError)
			}
		}()

		next(w, r)
	}
}

// responseWriter 包裝 ResponseWriter 以獲取狀態碼
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}
