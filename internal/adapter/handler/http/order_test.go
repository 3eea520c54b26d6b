package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/golang/mock/gomock"
	"github.com/govalues/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/maigscannabisclub-crypto/ecomerce-sub002/internal/adapter/config"
	"github.com/maigscannabisclub-crypto/ecomerce-sub002/internal/core/domain"
	"github.com/maigscannabisclub-crypto/ecomerce-sub002/internal/core/port"
	"github.com/maigscannabisclub-crypto/ecomerce-sub002/internal/core/port/mock"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(t *testing.T, ctrl *gomock.Controller, service port.OrderService) *Router {
	t.Helper()
	logger := zap.NewNop()

	tokens := mock.NewMockTokenService(ctrl)
	tokens.EXPECT().VerifyToken("good-token").
		Return(&port.TokenPayload{UserID: 42, Email: "buyer@shop.test"}, nil).AnyTimes()
	tokens.EXPECT().VerifyToken(gomock.Not("good-token")).
		Return(nil, domain.ErrInvalidToken).AnyTimes()

	handler, err := NewOrderHandler(service, logger)
	require.NoError(t, err)

	router, err := NewRouter(&config.HTTP{}, tokens, handler, logger)
	require.NoError(t, err)
	return router
}

func doRequest(router *Router, method, path, token string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func sampleOrder() *domain.Order {
	price := decimal.MustParse("100.00")
	return &domain.Order{
		ID:     "order-1",
		Number: "ORD-TEST-1",
		UserID: 42,
		Status: domain.OrderStatusPending,
		Items: []domain.OrderItem{
			{ProductID: "p-1", SKU: "SKU-1", Quantity: 2, UnitPrice: price, Subtotal: decimal.MustParse("200.00")},
		},
		Totals: domain.Totals{
			Subtotal:   decimal.MustParse("200.00"),
			Tax:        decimal.MustParse("20.00"),
			Shipping:   decimal.MustParse("10.00"),
			GrandTotal: decimal.MustParse("230.00"),
		},
		StatusHistory: []domain.StatusEntry{{Status: domain.OrderStatusPending, Actor: "user:42"}},
	}
}

func TestCreateOrderEndpoint(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	service := mock.NewMockOrderService(ctrl)
	service.EXPECT().
		CreateOrder(gomock.Any(), uint64(42), "buyer@shop.test", gomock.Len(1)).
		Return(sampleOrder(), nil)

	router := newTestRouter(t, ctrl, service)

	rec := doRequest(router, http.MethodPost, "/api/orders", "good-token", gin.H{
		"items": []gin.H{
			{"productId": "p-1", "sku": "SKU-1", "quantity": 2, "unitPrice": "100.00"},
		},
	})

	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp orderResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "order-1", resp.ID)
	assert.Equal(t, "PENDING", resp.Status)
	assert.Equal(t, "230.00", resp.GrandTotal)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "100.00", resp.Items[0].UnitPrice)
}

func TestCreateOrderEndpointBadPrice(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	service := mock.NewMockOrderService(ctrl)
	router := newTestRouter(t, ctrl, service)

	rec := doRequest(router, http.MethodPost, "/api/orders", "good-token", gin.H{
		"items": []gin.H{
			{"productId": "p-1", "quantity": 2, "unitPrice": "not-a-number"},
		},
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOrderEndpointsAuth(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	router := newTestRouter(t, ctrl, mock.NewMockOrderService(ctrl))

	rec := doRequest(router, http.MethodGet, "/api/orders", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(router, http.MethodGet, "/api/orders", "bad-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetOrderEndpointStatuses(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"not found", domain.ErrDataNotFound, http.StatusNotFound},
		{"foreign order", domain.ErrForbidden, http.StatusForbidden},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			service := mock.NewMockOrderService(ctrl)
			service.EXPECT().
				GetOrder(gomock.Any(), "order-1", uint64(42)).
				Return(nil, tc.err)

			router := newTestRouter(t, ctrl, service)
			rec := doRequest(router, http.MethodGet, "/api/orders/order-1", "good-token", nil)
			assert.Equal(t, tc.code, rec.Code)
		})
	}
}

func TestCancelOrderEndpoint(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	cancelled := sampleOrder()
	cancelled.Status = domain.OrderStatusCancelled

	service := mock.NewMockOrderService(ctrl)
	service.EXPECT().
		CancelOrder(gomock.Any(), "order-1", uint64(42), "cancelled by customer").
		Return(cancelled, nil)

	router := newTestRouter(t, ctrl, service)
	rec := doRequest(router, http.MethodPost, "/api/orders/order-1/cancel", "good-token", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp orderResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "CANCELLED", resp.Status)
}

func TestCancelOrderEndpointConflict(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	service := mock.NewMockOrderService(ctrl)
	service.EXPECT().
		CancelOrder(gomock.Any(), "order-1", uint64(42), gomock.Any()).
		Return(nil, domain.ErrOrderNotCancellable)

	router := newTestRouter(t, ctrl, service)
	rec := doRequest(router, http.MethodPost, "/api/orders/order-1/cancel", "good-token", nil)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestUpdateOrderStatusEndpoint(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	reserved := sampleOrder()
	reserved.Status = domain.OrderStatusReserved

	service := mock.NewMockOrderService(ctrl)
	service.EXPECT().
		UpdateOrderStatus(gomock.Any(), "order-1", domain.OrderStatusReserved,
			"manual", "operator:buyer@shop.test").
		Return(reserved, nil)

	router := newTestRouter(t, ctrl, service)
	rec := doRequest(router, http.MethodPatch, "/api/orders/order-1/status", "good-token",
		gin.H{"status": "RESERVED", "note": "manual"})

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestUpdateOrderStatusEndpointInvalidTransition(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	service := mock.NewMockOrderService(ctrl)
	service.EXPECT().
		UpdateOrderStatus(gomock.Any(), "order-1", domain.OrderStatus("DELIVERED"), gomock.Any(), gomock.Any()).
		Return(nil, domain.ErrInvalidTransition)

	router := newTestRouter(t, ctrl, service)
	rec := doRequest(router, http.MethodPatch, "/api/orders/order-1/status", "good-token",
		gin.H{"status": "DELIVERED"})

	assert.Equal(t, http.StatusConflict, rec.Code)
}
