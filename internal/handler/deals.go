package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"mt5bridge/internal/analytics"
	"mt5bridge/internal/repository"
)

// DealHandler serves deal-history analytics.
type DealHandler struct {
	Engine *analytics.Engine
}

func (h *DealHandler) Register(r *gin.Engine) {
	group := r.Group("/deals")
	group.GET("", h.list)
	group.GET("/summary", h.summary)
	group.GET("/rebates", h.rebates)
	group.GET("/manager-performance", h.managerPerformance)
	group.GET("/balance-operations", h.balanceOperations)
	group.GET("/daily-pnl", h.dailyPnL)
}

func dealFilter(c *gin.Context) repository.DealFilter {
	return repository.DealFilter{
		AccountID: int64QueryPtr(c, "account"),
		Start:     timeQueryPtr(c, "start"),
		End:       timeQueryPtr(c, "end"),
		Symbol:    strQueryPtr(c, "symbol"),
		DealType:  intQueryPtr(c, "type"),
	}
}

func (h *DealHandler) list(c *gin.Context) {
	limit := intQuery(c, "limit", 100)
	deals, err := h.Engine.QueryDeals(c.Request.Context(), dealFilter(c), limit)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"deals": deals,
		"count": len(deals),
	})
}

func (h *DealHandler) summary(c *gin.Context) {
	sum, err := h.Engine.Summarize(c.Request.Context(), dealFilter(c))
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error())
		return
	}
	c.JSON(http.StatusOK, sum.Rounded())
}

func (h *DealHandler) rebates(c *gin.Context) {
	rate := decimal.Zero
	if v := strQueryPtr(c, "ratePerLot"); v != nil {
		parsed, err := decimal.NewFromString(*v)
		if err != nil {
			Error(c, http.StatusBadRequest, "invalid ratePerLot")
			return
		}
		rate = parsed
	}
	report, err := h.Engine.CalculateRebates(c.Request.Context(), dealFilter(c), rate)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error())
		return
	}
	c.JSON(http.StatusOK, report.Rounded())
}

func (h *DealHandler) managerPerformance(c *gin.Context) {
	report, err := h.Engine.ManagerPerformance(c.Request.Context(),
		timeQueryPtr(c, "start"), timeQueryPtr(c, "end"))
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error())
		return
	}
	rounded := report.Rounded()
	c.JSON(http.StatusOK, gin.H{
		"managers":       rounded.Managers,
		"count":          len(rounded.Managers),
		"skippedRecords": rounded.SkippedRecords,
	})
}

func (h *DealHandler) balanceOperations(c *gin.Context) {
	report, err := h.Engine.ClassifyBalanceOperations(c.Request.Context(), dealFilter(c))
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error())
		return
	}
	c.JSON(http.StatusOK, report.Rounded())
}

func (h *DealHandler) dailyPnL(c *gin.Context) {
	days := intQuery(c, "days", 30)
	report, err := h.Engine.DailyPnL(c.Request.Context(), int64QueryPtr(c, "account"), days)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error())
		return
	}
	rounded := report.Rounded()
	c.JSON(http.StatusOK, gin.H{
		"days":           rounded.Days,
		"count":          len(rounded.Days),
		"skippedRecords": rounded.SkippedRecords,
	})
}
