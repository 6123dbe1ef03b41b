//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"AltPull/pkg/config"
	"AltPull/pkg/server"
)

// InitializeApp wires the serve graph. The returned cleanup closes infrastructure clients.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(ServeSet)
	return nil, nil, nil
}

// InitializeRuntime wires the core graph for one-shot CLI commands.
func InitializeRuntime(cfg *config.Config) (*Runtime, func(), error) {
	wire.Build(CoreSet, wire.Struct(new(Runtime), "*"))
	return nil, nil, nil
}
