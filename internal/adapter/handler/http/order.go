package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/govalues/decimal"
	"github.com/maigscannabisclub-crypto/ecomerce-sub002/internal/core/domain"
	"github.com/maigscannabisclub-crypto/ecomerce-sub002/internal/core/port"
	"go.uber.org/zap"
)

type OrderHandler struct {
	Handler
	service port.OrderService
}

func NewOrderHandler(service port.OrderService, logger *zap.Logger) (*OrderHandler, error) {
	return &OrderHandler{
		Handler: *NewHandler(logger),
		service: service,
	}, nil
}

type orderItemReq struct {
	ProductID string `json:"productId" binding:"required"`
	SKU       string `json:"sku"`
	Quantity  int32  `json:"quantity" binding:"required"`
	UnitPrice string `json:"unitPrice" binding:"required"`
}

type createOrderReq struct {
	Items []orderItemReq `json:"items" binding:"required"`
}

type cancelOrderReq struct {
	Reason string `json:"reason"`
}

type updateStatusReq struct {
	Status string `json:"status" binding:"required"`
	Note   string `json:"note"`
}

type orderItemResp struct {
	ProductID string `json:"productId"`
	SKU       string `json:"sku"`
	Quantity  int32  `json:"quantity"`
	UnitPrice string `json:"unitPrice"`
	Subtotal  string `json:"subtotal"`
}

type statusEntryResp struct {
	Status         string    `json:"status"`
	PreviousStatus string    `json:"previousStatus,omitempty"`
	Note           string    `json:"note,omitempty"`
	Actor          string    `json:"actor,omitempty"`
	At             time.Time `json:"at"`
}

type orderResp struct {
	ID            string            `json:"id"`
	Number        string            `json:"number"`
	Status        string            `json:"status"`
	Items         []orderItemResp   `json:"items"`
	Subtotal      string            `json:"subtotal"`
	Tax           string            `json:"tax"`
	Shipping      string            `json:"shipping"`
	GrandTotal    string            `json:"grandTotal"`
	StatusHistory []statusEntryResp `json:"statusHistory"`
	CreatedAt     time.Time         `json:"createdAt"`
}

// CreateOrder accepts the order synchronously; the reservation outcome shows
// up later in the order status.
func (oh *OrderHandler) CreateOrder(ctx *gin.Context) {
	payload := getAuthPayload(ctx)

	var req createOrderReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		oh.handleValidationError(ctx, domain.ErrBadRequest)
		return
	}

	items := make([]domain.OrderItem, 0, len(req.Items))
	for _, it := range req.Items {
		price, err := decimal.Parse(it.UnitPrice)
		if err != nil {
			oh.handleValidationError(ctx, domain.ErrBadRequest)
			return
		}
		items = append(items, domain.OrderItem{
			ProductID: it.ProductID,
			SKU:       it.SKU,
			Quantity:  it.Quantity,
			UnitPrice: price,
		})
	}

	order, err := oh.service.CreateOrder(ctx, payload.UserID, payload.Email, items)
	if err != nil {
		oh.handleError(ctx, err)
		return
	}

	oh.handleSuccessWithStatus(ctx, newOrderResp(order), http.StatusAccepted)
}

func (oh *OrderHandler) CreateOrderFromCart(ctx *gin.Context) {
	payload := getAuthPayload(ctx)
	cartID := ctx.Param("cartID")

	order, err := oh.service.CreateOrderFromCart(ctx, payload.UserID, payload.Email,
		cartID, getAuthToken(ctx))
	if err != nil {
		oh.handleError(ctx, err)
		return
	}

	oh.handleSuccessWithStatus(ctx, newOrderResp(order), http.StatusAccepted)
}

func (oh *OrderHandler) GetOrder(ctx *gin.Context) {
	payload := getAuthPayload(ctx)

	order, err := oh.service.GetOrder(ctx, ctx.Param("id"), payload.UserID)
	if err != nil {
		oh.handleError(ctx, err)
		return
	}

	oh.handleSuccess(ctx, newOrderResp(order))
}

func (oh *OrderHandler) ListOrdersByUser(ctx *gin.Context) {
	payload := getAuthPayload(ctx)

	list, err := oh.service.ListOrdersByUser(ctx, payload.UserID)
	if err != nil {
		oh.handleError(ctx, err)
		return
	}

	result := make([]orderResp, 0, len(list))
	for _, o := range list {
		result = append(result, *newOrderResp(o))
	}

	oh.handleSuccess(ctx, result)
}

func (oh *OrderHandler) CancelOrder(ctx *gin.Context) {
	payload := getAuthPayload(ctx)

	var req cancelOrderReq
	if err := ctx.ShouldBindJSON(&req); err != nil && ctx.Request.ContentLength > 0 {
		oh.handleValidationError(ctx, domain.ErrBadRequest)
		return
	}
	if req.Reason == "" {
		req.Reason = "cancelled by customer"
	}

	order, err := oh.service.CancelOrder(ctx, ctx.Param("id"), payload.UserID, req.Reason)
	if err != nil {
		oh.handleError(ctx, err)
		return
	}

	oh.handleSuccess(ctx, newOrderResp(order))
}

// UpdateOrderStatus is the operator path; invalid transitions come back as 409.
func (oh *OrderHandler) UpdateOrderStatus(ctx *gin.Context) {
	payload := getAuthPayload(ctx)

	var req updateStatusReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		oh.handleValidationError(ctx, domain.ErrBadRequest)
		return
	}

	order, err := oh.service.UpdateOrderStatus(ctx, ctx.Param("id"),
		domain.OrderStatus(req.Status), req.Note, "operator:"+payload.Email)
	if err != nil {
		oh.handleError(ctx, err)
		return
	}

	oh.handleSuccess(ctx, newOrderResp(order))
}

func newOrderResp(o *domain.Order) *orderResp {
	items := make([]orderItemResp, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, orderItemResp{
			ProductID: it.ProductID,
			SKU:       it.SKU,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice.String(),
			Subtotal:  it.Subtotal.String(),
		})
	}

	history := make([]statusEntryResp, 0, len(o.StatusHistory))
	for _, e := range o.StatusHistory {
		history = append(history, statusEntryResp{
			Status:         string(e.Status),
			PreviousStatus: string(e.PreviousStatus),
			Note:           e.Note,
			Actor:          e.Actor,
			At:             e.At,
		})
	}

	return &orderResp{
		ID:            o.ID,
		Number:        o.Number,
		Status:        string(o.Status),
		Items:         items,
		Subtotal:      o.Totals.Subtotal.String(),
		Tax:           o.Totals.Tax.String(),
		Shipping:      o.Totals.Shipping.String(),
		GrandTotal:    o.Totals.GrandTotal.String(),
		StatusHistory: history,
		CreatedAt:     o.CreatedAt,
	}
}
