package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"mt5bridge/internal/fees"
)

// FeeHandler serves performance-fee accrual and finalization.
type FeeHandler struct {
	Engine *fees.Engine
}

func (h *FeeHandler) Register(r *gin.Engine) {
	group := r.Group("/performance-fees")
	group.GET("/current", h.current)
	group.GET("/cashflow", h.cashflow)
	group.GET("/summary", h.summary)
	group.POST("/finalize", h.finalize)
}

func (h *FeeHandler) current(c *gin.Context) {
	report, err := h.Engine.CalculateCurrentFees(c.Request.Context())
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error())
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *FeeHandler) cashflow(c *gin.Context) {
	report, err := h.Engine.ForCashFlow(c.Request.Context())
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error())
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *FeeHandler) summary(c *gin.Context) {
	year := intQuery(c, "year", 0)
	month := intQuery(c, "month", 0)
	summary, err := h.Engine.Summary(c.Request.Context(), year, month)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error())
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *FeeHandler) finalize(c *gin.Context) {
	var req struct {
		Year  int `json:"year" binding:"required"`
		Month int `json:"month" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "year and month are required")
		return
	}
	created, err := h.Engine.FinalizeMonth(c.Request.Context(), req.Year, req.Month)
	if err != nil {
		if errors.Is(err, fees.ErrFinalizationConflict) {
			Error(c, http.StatusConflict, err.Error())
			return
		}
		Error(c, http.StatusBadGateway, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"transactions": created,
		"count":        len(created),
	})
}
