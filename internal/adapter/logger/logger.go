package logger

import (
	"github.com/maigscannabisclub-crypto/ecomerce-sub002/internal/adapter/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func NewLogger(conf *config.App) *zap.Logger {
	lvl, err := zap.ParseAtomicLevel(conf.LogLevel)
	if err != nil {
		zap.L().Error("error parsing log level", zap.Error(err))
		return nil
	}

	if conf.Mode == config.AppModeDevelop {
		cfg := zap.NewDevelopmentConfig()
		cfg.Level = lvl
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder

		return zap.Must(cfg.Build())
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = lvl
	return zap.Must(cfg.Build())
}
