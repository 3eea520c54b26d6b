package cart

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/govalues/decimal"
	"github.com/maigscannabisclub-crypto/ecomerce-sub002/internal/adapter/config"
	"github.com/maigscannabisclub-crypto/ecomerce-sub002/internal/adapter/resilience"
	"github.com/maigscannabisclub-crypto/ecomerce-sub002/internal/core/domain"
	"github.com/maigscannabisclub-crypto/ecomerce-sub002/internal/core/port"
	"go.uber.org/zap"
)

// Client fetches cart contents from the cart service for cart-to-order
// conversion. Every call goes through the circuit breaker.
type Client struct {
	host       string
	httpClient *http.Client
	breaker    *resilience.Breaker
	logger     *zap.Logger
}

func NewClient(cfg *config.Cart, breaker *resilience.Breaker, logger *zap.Logger) (*Client, error) {
	return &Client{
		host:       cfg.HostString,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		breaker:    breaker,
		logger:     logger,
	}, nil
}

type cartItemResponse struct {
	ProductID string  `json:"productId"`
	SKU       string  `json:"sku"`
	Quantity  int32   `json:"quantity"`
	UnitPrice float64 `json:"unitPrice"`
}

type cartResponse struct {
	ID     string             `json:"id"`
	UserID uint64             `json:"userId"`
	Items  []cartItemResponse `json:"items"`
}

func (c *Client) GetCart(ctx context.Context, cartID, token string) (*port.Cart, error) {
	var result cartResponse

	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		requestStr := "http://" + c.host + "/api/carts/" + cartID
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestStr, http.NoBody)
		if err != nil {
			return fmt.Errorf("error on %s : %w", requestStr, err)
		}
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("request error %s : %w", requestStr, err)
		}
		defer func() { _ = resp.Body.Close() }()

		switch resp.StatusCode {
		case http.StatusOK:
		case http.StatusNotFound:
			return domain.ErrDataNotFound
		case http.StatusUnauthorized:
			return domain.ErrUnauthorized
		default:
			c.logger.Error("unexpected status from cart service",
				zap.String("cart_id", cartID), zap.Int("status", resp.StatusCode))
			return fmt.Errorf("bad response %v for request %s", resp.StatusCode, requestStr)
		}

		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return fmt.Errorf("error on response decode: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	cart := &port.Cart{ID: result.ID, UserID: result.UserID}
	for _, item := range result.Items {
		price, err := decimal.NewFromFloat64(item.UnitPrice)
		if err != nil {
			return nil, fmt.Errorf("error on response decode: %w", err)
		}
		cart.Items = append(cart.Items, port.CartItem{
			ProductID: item.ProductID,
			SKU:       item.SKU,
			Quantity:  item.Quantity,
			UnitPrice: price,
		})
	}

	return cart, nil
}
