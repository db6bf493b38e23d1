package handler

import (
	"github.com/bitfantasy/nimo-bom/internal/costing"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// CostingHandler BOM展开与成本处理器
type CostingHandler struct {
	svc    *costing.Service
	logger *zap.Logger
}

// NewCostingHandler 创建成本处理器
func NewCostingHandler(svc *costing.Service, logger *zap.Logger) *CostingHandler {
	return &CostingHandler{svc: svc, logger: logger}
}

// Explode GET /boms/:id/explode
func (h *CostingHandler) Explode(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	req, ok := parseExplodeQuery(c, h.svc.Settings().DefaultDepth)
	if !ok {
		return
	}
	req.BOMID = id

	result, err := h.svc.Explode(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	Success(c, result)
}

// ExplodeByName GET /boms/explode?name=
func (h *CostingHandler) ExplodeByName(c *gin.Context) {
	req, ok := parseExplodeQuery(c, h.svc.Settings().DefaultDepth)
	if !ok {
		return
	}
	req.Name = c.Query("name")
	if req.Name == "" {
		BadRequest(c, "name is required")
		return
	}

	result, err := h.svc.ExplodeByName(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	Success(c, result)
}

// TotalCost GET /boms/:id/cost
func (h *CostingHandler) TotalCost(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	total, err := h.svc.ComputeTotalCost(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	Success(c, total)
}

// Export GET /boms/:id/explode/export
func (h *CostingHandler) Export(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	req, ok := parseExplodeQuery(c, h.svc.Settings().DefaultDepth)
	if !ok {
		return
	}
	req.BOMID = id

	f, filename, err := h.svc.ExportExplosion(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	defer f.Close()

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", "attachment; filename=\""+filename+"\"")
	c.Header("Content-Transfer-Encoding", "binary")

	if err := f.Write(c.Writer); err != nil {
		h.logger.Error("Write xlsx failed", zap.Uint("bom_id", id), zap.Error(err))
	}
}
