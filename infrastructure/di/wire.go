//go:build wireinject
// +build wireinject

package di

import (
	"context"

	"github.com/google/wire"

	"github.com/woragis/woragis-sub002/infrastructure/config"
)

// SuperSet is the main provider set containing all providers
var SuperSet = wire.NewSet(
	ProvideLogger,
	ProvideDomainConfig,
	ProvideCollector,
	ProvideTracerProvider,
	ProvideNodeRepository,
	ProvideHealthChecker,
	ProvideEventPublisher,
	ProvideNodeService,
	ProvideJWTValidator,
	ProvideHTTPHandler,
	ProvideConfigWatcher,
	wire.Struct(new(Container), "*"),
)

// InitializeContainer creates a fully wired container
func InitializeContainer(ctx context.Context, cfg *config.Config) (*Container, func(), error) {
	wire.Build(SuperSet)
	return nil, nil, nil
}
