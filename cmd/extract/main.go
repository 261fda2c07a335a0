// Command extract runs a full extraction pass against the Walmart
// Marketplace seller API: the paginated list streams, optionally the
// reconciliation report files, writing every record to the configured
// sink.
package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"commerce-extract/pkg/archive"
	"commerce-extract/pkg/auth"
	"commerce-extract/pkg/client"
	"commerce-extract/pkg/logging"
	"commerce-extract/pkg/paginate"
	"commerce-extract/pkg/ratelimit"
	"commerce-extract/pkg/sink"
	"commerce-extract/pkg/walmart"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(getEnv("LOG_LEVEL", "info")),
		Pretty: getEnv("LOG_PRETTY", "") == "true",
		Output: os.Stderr,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Redis is optional. Without it the rate limit gate degrades to
	// allow-all and tokens are held per process.
	var redisClient *redis.Client
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: redisURL})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal().Err(err).Str("redis_url", redisURL).Msg("Failed to connect to Redis")
		}
		logger.Info().Str("redis_url", redisURL).Msg("Connected to Redis")
	}

	var tokenCache auth.TokenCache
	if redisClient != nil {
		tokenCache = auth.NewRedisTokenCache(redisClient, "")
	}

	authenticator, err := walmart.NewAuthenticator(
		mustEnv(logger, "WALMART_CLIENT_ID"),
		mustEnv(logger, "WALMART_CLIENT_SECRET"),
		tokenCache,
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create authenticator")
	}

	limiter := ratelimit.NewTracker(redisClient, ratelimit.DefaultHeaders(), logger)

	apiClient, err := client.New(walmart.ClientConfig(
		os.Getenv("WALMART_API_URL"), authenticator, limiter))
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create API client")
	}

	out, err := openSink(logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open sink")
	}
	defer out.Close()

	startDate := getEnv("START_DATE", "2023-01-01")
	endDate := os.Getenv("END_DATE")

	for _, name := range strings.Split(getEnv("STREAMS", "orders,returns,items"), ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}

		desc, ok := descriptorFor(name, startDate, endDate)
		if !ok {
			logger.Warn().Str("stream", name).Msg("Unknown stream, skipping")
			continue
		}

		logger.Info().Str("stream", name).Msg("Extracting stream")
		err := paginate.NewFetcher(apiClient, desc).Run(ctx, func(record map[string]any) error {
			return out.Write(ctx, name, record)
		})
		if err != nil {
			logger.Fatal().Err(err).Str("stream", name).Msg("Stream extraction failed")
		}
	}

	if getEnv("RECONCILIATION", "") == "true" {
		logger.Info().Msg("Extracting reconciliation reports")
		recon := walmart.NewReconciliationStream(apiClient,
			os.Getenv("RECON_REPORT_VERSION"), startDate, endDate)

		err := recon.Run(ctx, func(reportDate string, row archive.Row) error {
			record := make(map[string]any, len(row)+1)
			for k, v := range row {
				record[k] = v
			}
			record["reportDate"] = reportDate
			return out.Write(ctx, "reconciliation", record)
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("Reconciliation extraction failed")
		}
	}

	logger.Info().Msg("Extraction complete")
}

// descriptorFor maps a stream name to its endpoint descriptor.
func descriptorFor(name, startDate, endDate string) (paginate.Descriptor, bool) {
	switch name {
	case "orders":
		return walmart.OrdersDescriptor(startDate, endDate), true
	case "returns":
		return walmart.ReturnsDescriptor(startDate, endDate), true
	case "items":
		return walmart.ItemsDescriptor(), true
	default:
		return paginate.Descriptor{}, false
	}
}

// openSink builds the configured record sink: sqlite with SINK=sqlite,
// JSON lines to OUTPUT (or stdout) otherwise.
func openSink(logger zerolog.Logger) (sink.Sink, error) {
	if getEnv("SINK", "jsonl") == "sqlite" {
		path := getEnv("OUTPUT", "extract.db")
		logger.Info().Str("path", path).Msg("Writing records to SQLite")
		return sink.NewSQLiteSink(path)
	}

	if path := os.Getenv("OUTPUT"); path != "" {
		file, err := os.Create(path)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("path", path).Msg("Writing records as JSON lines")
		return sink.NewJSONLSink(file), nil
	}

	return sink.NewJSONLSink(os.Stdout), nil
}

func mustEnv(logger zerolog.Logger, key string) string {
	value := os.Getenv(key)
	if value == "" {
		logger.Fatal().Str("key", key).Msg("Required environment variable is not set")
	}
	return value
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
