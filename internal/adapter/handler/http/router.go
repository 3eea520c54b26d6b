package http

import (
	"github.com/gin-gonic/gin"
	"github.com/maigscannabisclub-crypto/ecomerce-sub002/internal/adapter/config"
	"github.com/maigscannabisclub-crypto/ecomerce-sub002/internal/core/port"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
)

type Router struct {
	*gin.Engine
}

func NewRouter(
	conf *config.HTTP,
	tokenService port.TokenService,
	orderHandler *OrderHandler,
	logger *zap.Logger) (*Router, error) {

	router := gin.New()

	// Swagger
	router.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	api := router.Group("/api")
	{
		orders := api.Group("/orders")
		{
			orders.Use(authCheck(tokenService, logger))
			orders.POST("", orderHandler.CreateOrder)
			orders.POST("/from-cart/:cartID", orderHandler.CreateOrderFromCart)
			orders.GET("", orderHandler.ListOrdersByUser)
			orders.GET("/:id", orderHandler.GetOrder)
			orders.POST("/:id/cancel", orderHandler.CancelOrder)
			orders.PATCH("/:id/status", orderHandler.UpdateOrderStatus)
		}
	}

	return &Router{router}, nil
}

// Serve starts the HTTP server
func (r *Router) Serve(listenAddr string) error {
	return r.Run(listenAddr)
}
