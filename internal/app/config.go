package app

import (
	"github.com/trialworks/ars-backend/internal/pkg/envutil"
	"github.com/trialworks/ars-backend/internal/pkg/logger"
)

type Config struct {
	HTTPAddr    string
	MetricsAddr string

	// RedisAddr switches realtime events onto redis pub/sub so multiple
	// replicas fan out to their own SSE clients. Empty keeps the
	// in-process hub.
	RedisAddr string

	Environment string
	Version     string
}

func LoadConfig(log *logger.Logger) Config {
	return Config{
		HTTPAddr:    envutil.GetEnv("HTTP_ADDR", ":8080", log),
		MetricsAddr: envutil.GetEnv("METRICS_ADDR", ":9090", log),
		RedisAddr:   envutil.GetEnv("REDIS_ADDR", "", log),
		Environment: envutil.GetEnv("ENVIRONMENT", "development", log),
		Version:     envutil.GetEnv("SERVICE_VERSION", "dev", log),
	}
}
