//go:build wireinject
// +build wireinject

package di

import (
	"ShrimpCast/pkg/config"
	"ShrimpCast/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideStore,
		ProvideRedisCache,
		ProvideCache,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,
		ProvideQueue,
		ProvideHub,
		ProvideEventPublisher,

		// Forecasting core
		ProvideTrendForecaster,
		ProvideCorrelationFitter,
		ProvideDispatchComposer,
		ProvidePurchaseOptimizer,
		ProvideSourceConsolidator,

		// Use cases
		ProvideUsecaseOptions,
		ProvideForecastService,
		ProvidePriceIngestor,
		ProvideRecomputeJob,
		ProvideKafkaHandlers,

		// Transport
		ProvideAPIHandler,
		ProvideApp,
	)
	return &server.App{}, nil
}
