package worker

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"docforge/internal/assetcache"
	"docforge/internal/config"
	"docforge/internal/metrics"
	"docforge/internal/pkg/logger"
	"docforge/internal/ports"
	"docforge/internal/worker/background"
)

type Deps struct {
	Cfg        config.Worker
	Pool       *pgxpool.Pool
	RDB        *redis.Client
	Store      ports.ObjectStore
	AssetCache *assetcache.Cache
	Background *background.Runner
	Metrics    *metrics.Recorder
	Log        *logger.Logger
}
