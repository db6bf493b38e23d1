package handler

import (
	"github.com/bitfantasy/nimo-bom/internal/margin"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// MarginHandler 毛利处理器
type MarginHandler struct {
	svc    *margin.Service
	logger *zap.Logger
}

// NewMarginHandler 创建毛利处理器
func NewMarginHandler(svc *margin.Service, logger *zap.Logger) *MarginHandler {
	return &MarginHandler{svc: svc, logger: logger}
}

// BOMMargin GET /boms/:id/margin
func (h *MarginHandler) BOMMargin(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	m, err := h.svc.BOMMargin(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	Success(c, m)
}

// Report GET /reports/margin
func (h *MarginHandler) Report(c *gin.Context) {
	report, err := h.svc.Report(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	Success(c, report)
}
