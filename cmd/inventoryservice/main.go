package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/maigscannabisclub-crypto/ecomerce-sub002/internal/adapter/broker"
	"github.com/maigscannabisclub-crypto/ecomerce-sub002/internal/adapter/config"
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

	uow, err := repository.NewUnitOfWork(db)
	if err != nil {
		log.Error("unit of work creating error", zap.Error(err))
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

	inventory, err := service.NewInventoryService(proc, conf.Inventory.WarehouseID,
		conf.Inventory.ReservationTTL, log.Named("InventoryService"))
	if err != nil {
		log.Error("inventory service creating error", zap.Error(err))
		return
	}

	err = rabbit.Subscribe(ctx, "inventory-service.order-events", []string{
		domain.EventOrderCreated.RoutingKey(),
		domain.EventOrderFailed.RoutingKey(),
		domain.EventOrderCancelled.RoutingKey(),
	}, inventory.Handle)
	if err != nil {
		log.Error("subscribe error", zap.Error(err))
		return
	}

	log.Info("inventory service started",
		zap.String("warehouse", conf.Inventory.WarehouseID))

	<-ctx.Done()
	log.Info("inventory service stopped")
}
