package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"mt5bridge/internal/mux"
	"mt5bridge/internal/repository"
)

// BridgeHandler serves terminal-bridge state: session health and
// per-account snapshots from the multiplexer cache.
type BridgeHandler struct {
	Mux  *mux.Multiplexer
	Repo repository.Repository
}

func (h *BridgeHandler) Register(r *gin.Engine) {
	r.GET("/mt5/bridge/health", h.bridgeHealth)
	r.GET("/mt5/accounts/summary", h.accountsSummary)
	r.GET("/mt5/account/:id/info", h.accountInfo)
	r.GET("/mt5/account/:id/trades", h.accountTrades)
}

func (h *BridgeHandler) bridgeHealth(c *gin.Context) {
	health := h.Mux.Health()
	status := "ok"
	if !health.Initialized {
		status = "degraded"
	}
	terminalInfo := gin.H{
		"cachedAccounts": health.CachedAccounts,
	}
	if !health.LastCycleAt.IsZero() {
		terminalInfo["lastRefreshAt"] = health.LastCycleAt
	}
	if health.LastCycleError != "" {
		terminalInfo["lastRefreshError"] = health.LastCycleError
	}
	c.JSON(http.StatusOK, gin.H{
		"status": status,
		"mt5": gin.H{
			"initialized":  health.Initialized,
			"available":    health.Initialized && health.LastCycleError == "",
			"terminalInfo": terminalInfo,
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *BridgeHandler) accountsSummary(c *gin.Context) {
	entries := h.Mux.GetAllSnapshots(c.Request.Context())
	accounts := make([]gin.H, 0, len(entries))
	for _, e := range entries {
		accounts = append(accounts, gin.H{
			"account":  e.Account.Login,
			"name":     e.Account.Name,
			"fundType": e.Account.FundType,
			"balance":  e.Entry.Snapshot.Balance.Round(2),
			"equity":   e.Entry.Snapshot.Equity.Round(2),
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"accounts": accounts,
		"count":    len(accounts),
	})
}

func (h *BridgeHandler) accountInfo(c *gin.Context) {
	accountID, acct, ok := h.pathAccount(c)
	if !ok {
		return
	}
	entry := h.Mux.GetAccountSnapshot(c.Request.Context(), accountID)

	liveData := gin.H{
		"balance":     entry.Snapshot.Balance.Round(2),
		"equity":      entry.Snapshot.Equity.Round(2),
		"profit":      entry.Snapshot.Profit.Round(2),
		"margin":      entry.Snapshot.Margin.Round(2),
		"marginFree":  entry.Snapshot.MarginFree.Round(2),
		"marginLevel": entry.Snapshot.MarginLevel.Round(2),
		"currency":    entry.Snapshot.Currency,
		"leverage":    entry.Snapshot.Leverage,
		"dataSource":  entry.Freshness,
	}
	if entry.Note != "" {
		liveData["note"] = entry.Note
	}
	resp := gin.H{
		"accountId": accountID,
		"name":      acct.Name,
		"fundType":  acct.FundType,
		"provider":  "mt5",
		"liveData":  liveData,
	}
	if !entry.Snapshot.CapturedAt.IsZero() {
		resp["lastSync"] = entry.Snapshot.CapturedAt
	}
	c.JSON(http.StatusOK, resp)
}

func (h *BridgeHandler) accountTrades(c *gin.Context) {
	accountID, _, ok := h.pathAccount(c)
	if !ok {
		return
	}
	limit := intQuery(c, "limit", 50)
	filter := repository.DealFilter{AccountID: &accountID}

	trades, err := h.Repo.ListDeals(c.Request.Context(), filter, limit)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error())
		return
	}
	total, err := h.Repo.CountDeals(c.Request.Context(), filter)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"trades":         trades,
		"count":          len(trades),
		"totalAvailable": total,
	})
}

func (h *BridgeHandler) pathAccount(c *gin.Context) (int64, mux.ManagedAccount, bool) {
	accountID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		Error(c, http.StatusBadRequest, "invalid account id")
		return 0, mux.ManagedAccount{}, false
	}
	for _, acct := range h.Mux.Accounts() {
		if acct.Login == accountID {
			return accountID, acct, true
		}
	}
	Error(c, http.StatusNotFound, "account not managed")
	return 0, mux.ManagedAccount{}, false
}
