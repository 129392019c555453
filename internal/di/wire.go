//go:build wireinject
// +build wireinject

package di

import (
	"FieldScan/pkg/config"
	"FieldScan/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Observability
		ProvideKafkaProducer,
		ProvideLogger,
		ProvideMetrics,
		ProvideTracing,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideCache,
		ProvideRateLimiter,

		// Repositories and data
		ProvideDataSource,
		ProvideMarketData,
		ProvideUniverse,
		ProvideSignalStore,
		ProvideArchive,
		ProvidePublishPipeline,

		// Use cases
		ProvidePipelineConfig,
		ProvideTickerPipeline,
		ProvideResultProcessor,
		ProvideOrchestrator,
		ProvideReviewer,

		// Delivery
		ProvideHTTPServer,
		ProvideKafkaConsumer,
		ProvideScheduler,

		// Application
		ProvideApp,
	)
	return &server.App{}, nil
}
