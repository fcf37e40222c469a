// Package http 商店服务接口
package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	ledgerdomain "github.com/wyfcoding/gameeconomy/internal/ledger/domain"
	"github.com/wyfcoding/gameeconomy/internal/shop/application"
	"github.com/wyfcoding/gameeconomy/internal/shop/domain"
)

type Handler struct {
	engine *application.Engine
}

func NewHandler(engine *application.Engine) *Handler {
	return &Handler{engine: engine}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	g := r.Group("/shops")
	{
		g.POST("", h.CreateShop)
		g.DELETE("", h.RemoveShop)
		g.GET("", h.GetShop)
		g.GET("/owned/:owner", h.ListShops)
		g.POST("/price", h.SetPrice)
		g.POST("/admin", h.MakeAdmin)
		g.POST("/buy", h.Buy)
		g.POST("/sell", h.Sell)
		g.POST("/interactions", h.BeginInteraction)
		g.POST("/interactions/resolve", h.ResolveInteraction)
		g.POST("/reconcile", h.Reconcile)
	}
	w := r.Group("/worth")
	{
		w.GET("/:item", h.ItemWorth)
		w.POST("/sell", h.SellItems)
	}
}

// statusFor 把商店领域错误映射为 HTTP 状态码
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrShopNotFound),
		errors.Is(err, domain.ErrNoPending):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrShopExists):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNotShopOwner):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrOutOfStock),
		errors.Is(err, domain.ErrContainerMissing),
		errors.Is(err, domain.ErrContainerMismatch),
		errors.Is(err, domain.ErrContainerFull),
		errors.Is(err, domain.ErrNotEnoughItems),
		errors.Is(err, domain.ErrOwnerInsufficientFunds),
		errors.Is(err, domain.ErrNothingToTrade),
		errors.Is(err, domain.ErrItemNotSellable),
		errors.Is(err, ledgerdomain.ErrInsufficientFunds):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrPendingExpired),
		errors.Is(err, domain.ErrBadQuantity):
		return http.StatusBadRequest
	case errors.Is(err, ledgerdomain.ErrConflictExhausted):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

type LocationReq struct {
	World string `json:"world" form:"world" binding:"required"`
	X     int    `json:"x" form:"x"`
	Y     int    `json:"y" form:"y"`
	Z     int    `json:"z" form:"z"`
}

func (r LocationReq) location() domain.Location {
	return domain.Location{World: r.World, X: r.X, Y: r.Y, Z: r.Z}
}

type CreateShopReq struct {
	Location  LocationReq `json:"location" binding:"required"`
	OwnerID   string      `json:"owner_id" binding:"required"`
	OwnerName string      `json:"owner_name" binding:"required"`
	ItemID    string      `json:"item_id" binding:"required"`
	Price     string      `json:"price" binding:"required"`
	Direction string      `json:"direction" binding:"required"`
	Admin     bool        `json:"admin"`
}

func (h *Handler) CreateShop(c *gin.Context) {
	var req CreateShopReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	owner, err := uuid.Parse(req.OwnerID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid owner id"})
		return
	}
	price, err := decimal.NewFromString(req.Price)
	if err != nil || price.Sign() < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid price"})
		return
	}

	var direction domain.Direction
	switch domain.Direction(req.Direction) {
	case domain.ShopSells, domain.ShopBuys:
		direction = domain.Direction(req.Direction)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "direction must be sells or buys"})
		return
	}

	shop, err := h.engine.CreateShop(c.Request.Context(), req.Location.location(), owner, req.OwnerName,
		domain.ItemRef{ID: req.ItemID}, price, direction, req.Admin)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"shop": shop})
}

type RemoveShopReq struct {
	Location LocationReq `json:"location" binding:"required"`
	ActorID  string      `json:"actor_id" binding:"required"`
	AsAdmin  bool        `json:"as_admin"`
}

func (h *Handler) RemoveShop(c *gin.Context) {
	var req RemoveShopReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	actor, err := uuid.Parse(req.ActorID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid actor id"})
		return
	}

	if err := h.engine.RemoveShop(c.Request.Context(), req.Location.location(), actor, req.AsAdmin); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusOK)
}

func (h *Handler) GetShop(c *gin.Context) {
	var req LocationReq
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	shop, ok := h.engine.ShopAt(req.location())
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": domain.ErrShopNotFound.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"shop": shop})
}

func (h *Handler) ListShops(c *gin.Context) {
	owner, err := uuid.Parse(c.Param("owner"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid owner id"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"shops": h.engine.ListShops(owner)})
}

type SetPriceReq struct {
	Location LocationReq `json:"location" binding:"required"`
	ActorID  string      `json:"actor_id" binding:"required"`
	AsAdmin  bool        `json:"as_admin"`
	Price    string      `json:"price" binding:"required"`
}

func (h *Handler) SetPrice(c *gin.Context) {
	var req SetPriceReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	actor, err := uuid.Parse(req.ActorID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid actor id"})
		return
	}
	price, err := decimal.NewFromString(req.Price)
	if err != nil || price.Sign() < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid price"})
		return
	}

	if err := h.engine.SetPrice(c.Request.Context(), req.Location.location(), actor, req.AsAdmin, price); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusOK)
}

type MakeAdminReq struct {
	Location LocationReq `json:"location" binding:"required"`
}

func (h *Handler) MakeAdmin(c *gin.Context) {
	var req MakeAdminReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.engine.MakeAdmin(c.Request.Context(), req.Location.location()); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusOK)
}

type TradeReq struct {
	Location    LocationReq `json:"location" binding:"required"`
	VisitorID   string      `json:"visitor_id" binding:"required"`
	VisitorName string      `json:"visitor_name" binding:"required"`
	Quantity    int         `json:"quantity" binding:"required"`
}

func (h *Handler) Buy(c *gin.Context) {
	var req TradeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	visitor, err := uuid.Parse(req.VisitorID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid visitor id"})
		return
	}

	if err := h.engine.Buy(c.Request.Context(), visitor, req.VisitorName, req.Location.location(), req.Quantity); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusOK)
}

func (h *Handler) Sell(c *gin.Context) {
	var req TradeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	visitor, err := uuid.Parse(req.VisitorID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid visitor id"})
		return
	}

	if err := h.engine.Sell(c.Request.Context(), visitor, req.VisitorName, req.Location.location(), req.Quantity); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusOK)
}

type BeginInteractionReq struct {
	Location LocationReq `json:"location" binding:"required"`
	ActorID  string      `json:"actor_id" binding:"required"`
}

func (h *Handler) BeginInteraction(c *gin.Context) {
	var req BeginInteractionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	actor, err := uuid.Parse(req.ActorID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid actor id"})
		return
	}

	if err := h.engine.BeginInteraction(actor, req.Location.location()); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusOK)
}

type ResolveInteractionReq struct {
	ActorID   string `json:"actor_id" binding:"required"`
	ActorName string `json:"actor_name" binding:"required"`
	Reply     string `json:"reply" binding:"required"`
}

func (h *Handler) ResolveInteraction(c *gin.Context) {
	var req ResolveInteractionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	actor, err := uuid.Parse(req.ActorID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid actor id"})
		return
	}

	if err := h.engine.ResolveInteraction(c.Request.Context(), actor, req.ActorName, req.Reply); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusOK)
}

func (h *Handler) Reconcile(c *gin.Context) {
	h.engine.Reconcile(c.Request.Context())
	c.Status(http.StatusOK)
}

func (h *Handler) ItemWorth(c *gin.Context) {
	item := c.Param("item")
	worth := h.engine.ItemWorth(item)
	c.JSON(http.StatusOK, gin.H{
		"item":     item,
		"worth":    worth,
		"sellable": worth.Sign() > 0,
	})
}

type SellItemsReq struct {
	ActorID   string `json:"actor_id" binding:"required"`
	ActorName string `json:"actor_name" binding:"required"`
	ItemID    string `json:"item_id" binding:"required"`
	// Quantity <= 0 表示全部出售
	Quantity int `json:"quantity"`
}

func (h *Handler) SellItems(c *gin.Context) {
	var req SellItemsReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	actor, err := uuid.Parse(req.ActorID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid actor id"})
		return
	}

	total, sold, err := h.engine.SellItems(c.Request.Context(), actor, req.ActorName,
		domain.ItemRef{ID: req.ItemID}, req.Quantity)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"total": total, "sold": sold})
}
