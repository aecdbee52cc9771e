// Package di wires the application together with google/wire.
package di

import (
	"net/http"

	"github.com/woragis/woragis-sub002/application/ports"
	"github.com/woragis/woragis-sub002/application/services"
	domainconfig "github.com/woragis/woragis-sub002/domain/config"
	"github.com/woragis/woragis-sub002/infrastructure/config"
	"github.com/woragis/woragis-sub002/infrastructure/observability"

	"go.uber.org/zap"
)

// Container holds all application dependencies
type Container struct {
	Config      *config.Config
	Logger      *zap.Logger
	DomainRules *domainconfig.Holder
	Collector   *observability.Collector
	Tracer      *observability.TracerProvider
	NodeRepo    ports.NodeRepository
	Health      ports.HealthChecker
	Publisher   ports.EventPublisher
	NodeService *services.NodeService
	Handler     http.Handler
	Watcher     *config.Watcher
}
