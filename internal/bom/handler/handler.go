package handler

import (
	"strconv"
	"strings"

	"github.com/bitfantasy/nimo-bom/internal/costing"
	"github.com/bitfantasy/nimo-bom/internal/margin"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handlers 处理器集合
type Handlers struct {
	Costing *CostingHandler
	Margin  *MarginHandler
}

// NewHandlers 创建处理器集合
func NewHandlers(costSvc *costing.Service, marginSvc *margin.Service, logger *zap.Logger) *Handlers {
	return &Handlers{
		Costing: NewCostingHandler(costSvc, logger),
		Margin:  NewMarginHandler(marginSvc, logger),
	}
}

// RegisterRoutes 注册 /api/v1 路由
func (h *Handlers) RegisterRoutes(r gin.IRouter) {
	v1 := r.Group("/api/v1")

	boms := v1.Group("/boms")
	{
		boms.GET("/explode", h.Costing.ExplodeByName)
		boms.GET("/:id/explode", h.Costing.Explode)
		boms.GET("/:id/explode/export", h.Costing.Export)
		boms.GET("/:id/cost", h.Costing.TotalCost)
		boms.GET("/:id/margin", h.Margin.BOMMargin)
	}

	reports := v1.Group("/reports")
	{
		reports.GET("/margin", h.Margin.Report)
	}
}

// Response 通用响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(200, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// Error 错误响应，HTTP 状态码取 code/100
func Error(c *gin.Context, code int, message string) {
	statusCode := code / 100
	if statusCode < 100 || statusCode > 599 {
		statusCode = 500
	}
	c.JSON(statusCode, Response{
		Code:    code,
		Message: message,
	})
}

// BadRequest 参数错误响应
func BadRequest(c *gin.Context, message string) {
	Error(c, 40000, message)
}

// NotFound 资源不存在响应
func NotFound(c *gin.Context, message string) {
	Error(c, 40400, message)
}

// Conflict 名称匹配多个BOM
func Conflict(c *gin.Context, message string) {
	Error(c, 40900, message)
}

// Unprocessable BOM结构存在循环
func Unprocessable(c *gin.Context, message string) {
	Error(c, 42200, message)
}

// InternalError 服务器错误响应
func InternalError(c *gin.Context, message string) {
	Error(c, 50000, message)
}

// ServiceUnavailable 存储不可用，可重试
func ServiceUnavailable(c *gin.Context, message string) {
	Error(c, 50300, message)
}

// respondError 按错误分类返回
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	c.Error(err)
	switch costing.KindOf(err) {
	case costing.KindInvalidInput:
		BadRequest(c, err.Error())
	case costing.KindNotFound:
		NotFound(c, err.Error())
	case costing.KindAmbiguousBOM:
		Conflict(c, err.Error())
	case costing.KindCycleDetected:
		Unprocessable(c, err.Error())
	case costing.KindUnavailable:
		ServiceUnavailable(c, "data store unavailable, retry later")
	default:
		logger.Error("Unhandled costing error", zap.String("path", c.FullPath()), zap.Error(err))
		InternalError(c, "internal error")
	}
}

// parseID 解析路径中的正整数ID
func parseID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		BadRequest(c, "invalid "+name)
		return 0, false
	}
	return uint(id), true
}

// parseExplodeQuery 解析 depth/aggregate/currency，depth 缺省时用 defaultDepth
func parseExplodeQuery(c *gin.Context, defaultDepth int) (costing.ExplodeRequest, bool) {
	req := costing.ExplodeRequest{
		Depth:        defaultDepth,
		BaseCurrency: strings.TrimSpace(c.Query("currency")),
	}

	if d := c.Query("depth"); d != "" {
		v, err := strconv.Atoi(d)
		if err != nil {
			BadRequest(c, "depth must be an integer")
			return req, false
		}
		req.Depth = v
	}

	switch strings.ToLower(c.DefaultQuery("aggregate", "0")) {
	case "1", "true":
		req.Aggregate = true
	case "0", "false", "":
	default:
		BadRequest(c, "aggregate must be 0 or 1")
		return req, false
	}
	return req, true
}
