package di

import (
	"go.uber.org/fx"

	"github.com/dinehall/tableside/internal/adapter/catalog"
	"github.com/dinehall/tableside/internal/adapter/events"
	"github.com/dinehall/tableside/internal/adapter/gateway"
	"github.com/dinehall/tableside/internal/app"
	"github.com/dinehall/tableside/internal/config"
	"github.com/dinehall/tableside/internal/logger"
	"github.com/dinehall/tableside/internal/server/http/handlers"
	"github.com/dinehall/tableside/internal/server/http/router"
	"github.com/dinehall/tableside/internal/storage/cache"
	"github.com/dinehall/tableside/internal/storage/postgres"
	"github.com/dinehall/tableside/internal/usecase"
)

// Module assembles the full application graph. Options passed in are
// appended last so tests can replace individual components.
func Module(opts ...fx.Option) fx.Option {
	modules := []fx.Option{
		config.Module,
		logger.Module,
		postgres.Module,
		fx.Provide(cache.NewSessionCache),
		gateway.Module,
		catalog.Module,
		events.Module,
		usecase.Module,
		fx.Provide(func(client gateway.Client) usecase.CaptureGateway { return client }),
		fx.Provide(func(client catalog.Client) app.CatalogProvider { return client }),
		fx.Provide(func(facade *app.TableServiceFacade) handlers.TablesideFacade { return facade }),
		fx.Provide(func(storage *postgres.Storage) handlers.HealthChecker { return storage }),
		router.Module,
		app.Module,
	}
	modules = append(modules, opts...)
	return fx.Options(modules...)
}
