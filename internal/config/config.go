// Package config collects the environment-style configuration for the
// docforge worker process.
package config

import (
	"time"

	"docforge/internal/worker/util"
)

// Worker holds everything the export worker needs at startup.
type Worker struct {
	DatabaseURL string
	RedisAddr   string

	QueueName         string
	DeadLetterName    string
	Concurrency       int
	MaxAttempts       int
	VisibilityTimeout time.Duration
	ShutdownGrace     time.Duration

	ResultCacheTTL    time.Duration
	ResultCachePrefix string

	TemplateCacheCapacity int
	TemplateCacheTTL      time.Duration
	TemplateCacheMaxBytes int64
	TemplatePrewarmCount  int

	ConvertBin     string
	ConvertTimeout time.Duration

	RendererBaseURL string

	MetricsAddr string
}

// FromEnv reads the worker configuration from the environment.
// DATABASE_URL, REDIS_ADDR and RENDERER_HTTP_BASEURL are required; everything
// else has defaults.
func FromEnv() Worker {
	return Worker{
		DatabaseURL: util.MustEnv("DATABASE_URL"),
		RedisAddr:   util.MustEnv("REDIS_ADDR"),

		QueueName:         util.Env("JOB_QUEUE_NAME", "docforge:exports"),
		DeadLetterName:    util.Env("JOB_DEAD_LETTER_NAME", "docforge:exports:dead"),
		Concurrency:       util.IntEnv("WORKER_CONCURRENCY", 4),
		MaxAttempts:       util.IntEnv("JOB_MAX_ATTEMPTS", 3),
		VisibilityTimeout: util.DurationEnv("JOB_VISIBILITY_TIMEOUT", 5*time.Minute),
		ShutdownGrace:     util.DurationEnv("WORKER_SHUTDOWN_GRACE", 30*time.Second),

		ResultCacheTTL:    time.Duration(util.IntEnv("RESULT_CACHE_TTL_HOURS", 24)) * time.Hour,
		ResultCachePrefix: util.Env("RESULT_CACHE_PREFIX", "exports/cache"),

		TemplateCacheCapacity: util.IntEnv("TEMPLATE_CACHE_CAPACITY", 32),
		TemplateCacheTTL:      util.DurationEnv("TEMPLATE_CACHE_TTL", 30*time.Minute),
		TemplateCacheMaxBytes: util.Int64Env("TEMPLATE_CACHE_MAX_BYTES", 256<<20),
		TemplatePrewarmCount:  util.IntEnv("TEMPLATE_PREWARM_COUNT", 8),

		ConvertBin:     util.Env("CONVERT_BIN", "soffice"),
		ConvertTimeout: util.DurationEnv("CONVERT_TIMEOUT", 60*time.Second),

		RendererBaseURL: util.MustEnv("RENDERER_HTTP_BASEURL"),

		MetricsAddr: util.Env("METRICS_ADDR", ":9090"),
	}
}
