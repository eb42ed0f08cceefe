//go:build wireinject
// +build wireinject

package app

import (
	"context"

	"github.com/google/wire"

	"github.com/azaruiz94/sse-web/internal/config"
)

func Initialize(ctx context.Context, cfg *config.Config) (*App, error) {
	wire.Build(ProviderSet)
	return nil, nil
}
