// 文件: pkg/api/http.go
// HTTP 入口 (gin)
//
// 所有响应统一为 {"code": 0, "msg": "ok", "data": ...}，
// 出错时 code 等于 HTTP 状态码，data 为空。

package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"optlab.com/pkg/marketdata"
	"optlab.com/pkg/pricing/bs"
	"optlab.com/pkg/quote"
	"optlab.com/pkg/strategy"
)

// Response 统一响应
type Response struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data any    `json:"data,omitempty"`
}

// Handler 报价 HTTP 处理器
type Handler struct {
	svc    *quote.Service
	logger *slog.Logger
}

func NewHandler(svc *quote.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{svc: svc, logger: logger.With("component", "http")}
}

// NewRouter 创建 gin 引擎并注册全部路由
// gatherer 非 nil 时暴露 /metrics
func NewRouter(mode string, h *Handler, gatherer prometheus.Gatherer) *gin.Engine {
	gin.SetMode(mode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "UP"})
	})
	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
	h.RegisterRoutes(r)
	return r
}

// RegisterRoutes 注册业务路由
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	pricing := router.Group("/api/v1/pricing")
	{
		pricing.POST("/quote", h.priceWith(""))
		pricing.POST("/analytic", h.priceWith(quote.ModelBlackScholes))
		pricing.POST("/greeks", h.Greeks)
		pricing.POST("/binomial", h.priceWith(quote.ModelBinomial))
		pricing.POST("/montecarlo", h.priceWith(quote.ModelMonteCarlo))
		pricing.POST("/implied-vol", h.ImpliedVol)
		pricing.POST("/scenario", h.Scenario)
		pricing.POST("/heatmap", h.Heatmap)
		pricing.POST("/greek-surface", h.GreekSurface)
		pricing.POST("/distribution", h.Distribution)
	}

	strat := router.Group("/api/v1/strategy")
	{
		strat.GET("/kinds", h.Kinds)
		strat.POST("/analyze", h.AnalyzeStrategy)
		strat.POST("/payoff", h.Payoff)
	}

	quotes := router.Group("/api/v1/quotes")
	{
		quotes.GET("", h.RecentQuotes)
		quotes.GET("/:id", h.GetQuote)
	}
}

// =============================================================================
// 定价
// =============================================================================

// priceWith 固定模型的定价路由，model 为空时用请求体里的 model
func (h *Handler) priceWith(model quote.Model) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req quote.OptionRequest
		if !h.bind(c, &req) {
			return
		}
		if model != "" {
			req.Model = string(model)
		}
		q, err := h.svc.PriceOption(c.Request.Context(), req)
		h.reply(c, q, err)
	}
}

// Greeks 解析价格 + 希腊字母
func (h *Handler) Greeks(c *gin.Context) {
	var req quote.OptionRequest
	if !h.bind(c, &req) {
		return
	}
	req.Model = string(quote.ModelBlackScholes)
	req.Greeks = true
	q, err := h.svc.PriceOption(c.Request.Context(), req)
	h.reply(c, q, err)
}

func (h *Handler) ImpliedVol(c *gin.Context) {
	var req quote.ImpliedVolRequest
	if !h.bind(c, &req) {
		return
	}
	res, err := h.svc.ImpliedVol(c.Request.Context(), req)
	h.reply(c, res, err)
}

func (h *Handler) Scenario(c *gin.Context) {
	var req quote.ScenarioRequest
	if !h.bind(c, &req) {
		return
	}
	res, err := h.svc.Scenario(c.Request.Context(), req)
	h.reply(c, res, err)
}

func (h *Handler) Heatmap(c *gin.Context) {
	var req quote.HeatmapRequest
	if !h.bind(c, &req) {
		return
	}
	res, err := h.svc.Heatmap(c.Request.Context(), req)
	h.reply(c, res, err)
}

// GreekSurface spot × 期限 曲面
func (h *Handler) GreekSurface(c *gin.Context) {
	var req quote.GreekSurfaceRequest
	if !h.bind(c, &req) {
		return
	}
	res, err := h.svc.GreekSurface(c.Request.Context(), req)
	h.reply(c, res, err)
}

func (h *Handler) Distribution(c *gin.Context) {
	var req quote.OptionRequest
	if !h.bind(c, &req) {
		return
	}
	res, err := h.svc.Distribution(c.Request.Context(), req)
	h.reply(c, res, err)
}

// =============================================================================
// 策略
// =============================================================================

// Kinds 可用的策略模板
func (h *Handler) Kinds(c *gin.Context) {
	kinds := strategy.Kinds()
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = k.String()
	}
	h.reply(c, names, nil)
}

func (h *Handler) AnalyzeStrategy(c *gin.Context) {
	var req quote.StrategyRequest
	if !h.bind(c, &req) {
		return
	}
	q, err := h.svc.AnalyzeStrategy(c.Request.Context(), req)
	h.reply(c, q, err)
}

func (h *Handler) Payoff(c *gin.Context) {
	var req quote.StrategyRequest
	if !h.bind(c, &req) {
		return
	}
	res, err := h.svc.Payoff(c.Request.Context(), req)
	h.reply(c, res, err)
}

// =============================================================================
// 流水
// =============================================================================

func (h *Handler) GetQuote(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		h.fail(c, http.StatusBadRequest, "invalid quote id")
		return
	}
	rec, err := h.svc.Lookup(c.Request.Context(), id)
	h.reply(c, rec, err)
}

func (h *Handler) RecentQuotes(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil {
		h.fail(c, http.StatusBadRequest, "invalid limit")
		return
	}
	recs, err := h.svc.Recent(c.Request.Context(), limit)
	h.reply(c, recs, err)
}

// =============================================================================
// 响应
// =============================================================================

func (h *Handler) bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		h.fail(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func (h *Handler) reply(c *gin.Context, data any, err error) {
	if err == nil {
		c.JSON(http.StatusOK, Response{Code: 0, Msg: "ok", Data: data})
		return
	}
	status := StatusOf(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "path", c.FullPath(), "error", err)
	}
	h.fail(c, status, err.Error())
}

func (h *Handler) fail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, Response{Code: status, Msg: msg})
}

// StatusOf 错误到 HTTP 状态码
func StatusOf(err error) int {
	switch {
	case quote.IsInvalid(err):
		return http.StatusBadRequest
	case errors.Is(err, quote.ErrQuoteNotFound):
		return http.StatusNotFound
	case errors.Is(err, bs.ErrNoConvergence):
		return http.StatusUnprocessableEntity
	case errors.Is(err, quote.ErrJournalDisabled),
		errors.Is(err, quote.ErrMarketDataDisabled),
		errors.Is(err, marketdata.ErrNoData):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
