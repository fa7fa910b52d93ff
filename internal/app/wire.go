//go:build wireinject

package app

import (
	"context"

	"kabupilot/internal/config"

	"github.com/google/wire"
)

func buildAppWithWire(ctx context.Context, cfg *config.Config) (*App, error) {
	wire.Build(provideAppBuilder, provideRuntime, provideHTTPServer, provideApp)
	return nil, nil
}
