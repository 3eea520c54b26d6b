package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/govalues/decimal"
	"github.com/maigscannabisclub-crypto/ecomerce-sub002/internal/adapter/auth"
	"github.com/maigscannabisclub-crypto/ecomerce-sub002/internal/adapter/broker"
	"github.com/maigscannabisclub-crypto/ecomerce-sub002/internal/adapter/client/cart"
	"github.com/maigscannabisclub-crypto/ecomerce-sub002/internal/adapter/config"
	httphandler "github.com/maigscannabisclub-crypto/ecomerce-sub002/internal/adapter/handler/http"
	"github.com/maigscannabisclub-crypto/ecomerce-sub002/internal/adapter/logger"
	"github.com/maigscannabisclub-crypto/ecomerce-sub002/internal/adapter/outbox"
	"github.com/maigscannabisclub-crypto/ecomerce-sub002/internal/adapter/resilience"
	"github.com/maigscannabisclub-crypto/ecomerce-sub002/internal/adapter/storage"
	"github.com/maigscannabisclub-crypto/ecomerce-sub002/internal/adapter/storage/repository"
	"github.com/maigscannabisclub-crypto/ecomerce-sub002/internal/core/domain"
	"github.com/maigscannabisclub-crypto/ecomerce-sub002/internal/core/service"
	"go.uber.org/zap"
)

func main() {
	conf, err := config.NewConfig()
	if err != nil {
		fmt.Printf("config error:%s", err)
		return
	}

	log := logger.NewLogger(conf.App)
	if log == nil {
		fmt.Printf("error creating log")
		return
	}
	defer func() {
		err := log.Sync()
		if err != nil {
			fmt.Printf("log error: %s", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := storage.NewDBStorage(ctx, conf.Database)
	if err != nil {
		log.Error("database error", zap.Error(err))
		return
	}
	err = db.RunMigrations()
	if err != nil {
		log.Error("database migration error", zap.Error(err))
		return
	}

	repos := repository.NewRepositories(db.Pool, db.QueryBuilder)
	uow, err := repository.NewUnitOfWork(db)
	if err != nil {
		log.Error("unit of work creating error", zap.Error(err))
		return
	}

	tokenService, err := auth.New(conf.Auth)
	if err != nil {
		log.Error("token service creating error", zap.Error(err))
		return
	}

	cartBreaker, err := resilience.NewBreaker(resilience.Config{
		Name:             "cart-service",
		FailureThreshold: conf.Breaker.FailureThreshold,
		Window:           conf.Breaker.Window,
		ResetTimeout:     conf.Breaker.ResetTimeout,
		CallTimeout:      conf.Breaker.CallTimeout,
	}, log.Named("Breaker"))
	if err != nil {
		log.Error("cart breaker creating error", zap.Error(err))
		return
	}

	cartClient, err := cart.NewClient(conf.Cart, cartBreaker, log.Named("CartClient"))
	if err != nil {
		log.Error("cart client creating error", zap.Error(err))
		return
	}

	taxRate, err := decimal.Parse(conf.Order.TaxRate)
	if err != nil {
		log.Error("bad tax rate", zap.Error(err))
		return
	}
	shipping, err := decimal.Parse(conf.Order.ShippingCost)
	if err != nil {
		log.Error("bad shipping cost", zap.Error(err))
		return
	}

	svc, err := service.NewOrderService(repos, uow, cartClient, taxRate, shipping, log.Named("OrderService"))
	if err != nil {
		log.Error("order service creating error", zap.Error(err))
		return
	}

	rabbit, err := broker.NewRabbitMQ(conf.Broker, log.Named("Broker"))
	if err != nil {
		log.Error("broker connect error", zap.Error(err))
		return
	}
	defer rabbit.Close()

	publishBreaker, err := resilience.NewBreaker(resilience.Config{
		Name:             "broker-publish",
		FailureThreshold: conf.Breaker.FailureThreshold,
		Window:           conf.Breaker.Window,
		ResetTimeout:     conf.Breaker.ResetTimeout,
		CallTimeout:      conf.Breaker.CallTimeout,
	}, log.Named("Breaker"))
	if err != nil {
		log.Error("publish breaker creating error", zap.Error(err))
		return
	}

	outboxPublisher, err := outbox.NewPublisher(uow, rabbit, publishBreaker, conf.Outbox, log.Named("Outbox"))
	if err != nil {
		log.Error("outbox publisher creating error", zap.Error(err))
		return
	}
	go outboxPublisher.Start(ctx)

	proc, err := service.NewIdempotentProcessor(uow, log.Named("Idempotency"))
	if err != nil {
		log.Error("idempotent processor creating error", zap.Error(err))
		return
	}
	reactor, err := service.NewOrderReactor(proc, log.Named("Reactor"))
	if err != nil {
		log.Error("order reactor creating error", zap.Error(err))
		return
	}

	err = rabbit.Subscribe(ctx, "order-service.stock-events", []string{
		domain.EventStockReserved.RoutingKey(),
		domain.EventStockReservationFailed.RoutingKey(),
	}, reactor.Handle)
	if err != nil {
		log.Error("subscribe error", zap.Error(err))
		return
	}

	orderHandler, err := httphandler.NewOrderHandler(svc, log.Named("Order handler"))
	if err != nil {
		log.Error("order handler creating error", zap.Error(err))
		return
	}

	r, err := httphandler.NewRouter(conf.HTTP, tokenService, orderHandler, log.Named("Router"))
	if err != nil {
		log.Error("router creating error", zap.Error(err))
		return
	}

	err = r.Serve(conf.HTTP.HostString)
	if err != nil {
		log.Error("router serve error", zap.Error(err))
		return
	}
}
