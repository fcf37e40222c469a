// Package http 账本管理接口
package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/wyfcoding/gameeconomy/internal/ledger/application"
	"github.com/wyfcoding/gameeconomy/internal/ledger/domain"
)

type Handler struct {
	ledger *application.Ledger
}

func NewHandler(ledger *application.Ledger) *Handler {
	return &Handler{ledger: ledger}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	g := r.Group("/ledger")
	{
		g.GET("/accounts/:id/balance", h.GetBalance)
		g.POST("/accounts/:id/give", h.Give)
		g.POST("/accounts/:id/take", h.Take)
		g.POST("/accounts/:id/set", h.Set)
		g.POST("/accounts/:id/reset", h.Reset)
		g.POST("/accounts", h.CreateAccount)
		g.DELETE("/accounts/:id", h.DeleteAccount)
		g.GET("/accounts/by-name/:name", h.Resolve)
		g.POST("/pay", h.Pay)
		g.GET("/top", h.Top)
		g.GET("/names", h.Names)
		g.GET("/audit", h.SearchAudit)
	}
}

// statusFor 把领域错误映射为 HTTP 状态码
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrAccountNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInsufficientFunds):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrConflictExhausted):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid account id"})
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) GetBalance(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	balance, err := h.ledger.GetBalance(c.Request.Context(), id)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"account_id": id,
		"balance":    balance,
		"formatted":  h.ledger.Format(balance),
	})
}

type AmountReq struct {
	Amount string `json:"amount" binding:"required"`
	// Name 账户显示名，用于审计行
	Name string `json:"name"`
	// Actor 操作者显示名，缺省记为 Server
	Actor string `json:"actor"`
}

func (r *AmountReq) parse() (decimal.Decimal, string, string, error) {
	amount, err := decimal.NewFromString(r.Amount)
	if err != nil {
		return decimal.Decimal{}, "", "", err
	}
	name := r.Name
	if name == "" {
		name = "Unknown"
	}
	actor := r.Actor
	if actor == "" {
		actor = "Server"
	}
	return amount, name, actor, nil
}

func (h *Handler) Give(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req AmountReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	amount, name, actor, err := req.parse()
	if err != nil || amount.Sign() < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
		return
	}

	if _, err := h.ledger.AddBalance(c.Request.Context(), id, amount, true); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	if a := h.ledger.Audit(); a != nil {
		a.Record("GIVE", actor, name, amount, "Admin command")
	}
	c.Status(http.StatusOK)
}

func (h *Handler) Take(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req AmountReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	amount, name, actor, err := req.parse()
	if err != nil || amount.Sign() < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
		return
	}

	if _, err := h.ledger.RemoveBalance(c.Request.Context(), id, amount, true); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	if a := h.ledger.Audit(); a != nil {
		a.Record("TAKE", actor, name, amount, "Admin command")
	}
	c.Status(http.StatusOK)
}

func (h *Handler) Set(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req AmountReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	amount, name, actor, err := req.parse()
	if err != nil || amount.Sign() < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
		return
	}

	if err := h.ledger.SetBalance(c.Request.Context(), id, amount, true); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	if a := h.ledger.Audit(); a != nil {
		a.Record("SET", actor, name, amount, "Admin command")
	}
	c.Status(http.StatusOK)
}

type ResetReq struct {
	Name  string `json:"name"`
	Actor string `json:"actor"`
}

func (h *Handler) Reset(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req ResetReq
	_ = c.ShouldBindJSON(&req)
	name := req.Name
	if name == "" {
		name = "Unknown"
	}
	actor := req.Actor
	if actor == "" {
		actor = "Server"
	}

	if err := h.ledger.ResetBalance(c.Request.Context(), id, true); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	if a := h.ledger.Audit(); a != nil {
		a.Record("RESET", actor, name, decimal.Zero, "Balance reset to default")
	}
	c.Status(http.StatusOK)
}

type CreateAccountReq struct {
	AccountID string `json:"account_id"`
	Name      string `json:"name" binding:"required"`
}

func (h *Handler) CreateAccount(c *gin.Context) {
	var req CreateAccountReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id := uuid.New()
	if req.AccountID != "" {
		parsed, err := uuid.Parse(req.AccountID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid account id"})
			return
		}
		id = parsed
	}

	if err := h.ledger.CreateAccount(c.Request.Context(), id, req.Name); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"account_id": id})
}

func (h *Handler) DeleteAccount(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := h.ledger.DeleteAccount(c.Request.Context(), id); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusOK)
}

func (h *Handler) Resolve(c *gin.Context) {
	id, found, err := h.ledger.IDByName(c.Request.Context(), c.Param("name"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"account_id": id})
}

type PayReq struct {
	From     string `json:"from" binding:"required"`
	To       string `json:"to" binding:"required"`
	FromName string `json:"from_name"`
	ToName   string `json:"to_name"`
	Amount   string `json:"amount" binding:"required"`
}

func (h *Handler) Pay(c *gin.Context) {
	var req PayReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	from, err := uuid.Parse(req.From)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid sender id"})
		return
	}
	to, err := uuid.Parse(req.To)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid recipient id"})
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || amount.Sign() <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
		return
	}

	if err := h.ledger.Pay(c.Request.Context(), from, to, req.FromName, req.ToName, amount); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusOK)
}

func (h *Handler) Top(c *gin.Context) {
	n := 10
	if raw := c.Query("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid n"})
			return
		}
		n = parsed
	}

	accounts, err := h.ledger.TopAccounts(c.Request.Context(), n)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"accounts": accounts})
}

func (h *Handler) Names(c *gin.Context) {
	names, err := h.ledger.KnownNames(c.Request.Context())
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"names": names})
}

func (h *Handler) SearchAudit(c *gin.Context) {
	a := h.ledger.Audit()
	if a == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "audit log disabled"})
		return
	}

	target := c.DefaultQuery("target", "*")
	since := time.Time{}
	if raw := c.Query("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid since timestamp"})
			return
		}
		since = parsed
	}

	entries, err := a.Search(target, since)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}
