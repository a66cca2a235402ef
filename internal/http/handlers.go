package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/maintenance-gate/internal/maintenance"
)

type Handler struct {
	gate *maintenance.Gate
}

func NewHandler(gate *maintenance.Gate) *Handler {
	return &Handler{gate: gate}
}

// Health is the liveness check. It is outside the protected prefix so it keeps
// answering during maintenance.
func (h *Handler) Health(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Status reports the locally cached maintenance state without authentication
// and without touching the shared store.
func (h *Handler) Status(ctx *gin.Context) {
	state := h.gate.State()
	ctx.JSON(http.StatusOK, gin.H{
		"mode":        state.Mode,
		"maintenance": state.Mode == maintenance.ModeMaintenance,
	})
}

// API stands in for the application served behind the gate.
func (h *Handler) API(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"path":   ctx.Param("path"),
	})
}
