package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/titan/internal/middleware"
	"github.com/hitoshi/titan/internal/model"
)

// PresenceAggregator はDiscordの状態を集約するインターフェース。
type PresenceAggregator interface {
	Aggregate(ctx context.Context) (*model.PresenceSnapshot, error)
}

// PresenceHandler はDiscordウィジェットのHTTPハンドラー。
type PresenceHandler struct {
	aggregator PresenceAggregator
}

// NewPresenceHandler はPresenceHandlerを生成する。
func NewPresenceHandler(aggregator PresenceAggregator) *PresenceHandler {
	return &PresenceHandler{aggregator: aggregator}
}

// GetWidget は集約したスナップショットを返す。
// GET /api/discord-widget
func (h *PresenceHandler) GetWidget(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.aggregator.Aggregate(r.Context())
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}
