// Package module wires the registry service and exposes its port
package module

import (
	"searchbeat/internal/modkit"
	"searchbeat/internal/services/registry/domain"
	"searchbeat/internal/services/registry/repo"
	"searchbeat/internal/services/registry/service"
)

// Module defines the registry module
type Module struct {
	deps  modkit.Deps
	ports Ports
}

// Ports defines the registry module surface
type Ports struct {
	Registry domain.RegistryPort
}

// New constructs the registry module
func New(deps modkit.Deps, listers map[string]domain.SiteLister) *Module {
	svc := service.New(deps, repo.NewPG(), listers)
	return &Module{deps: deps, ports: Ports{Registry: svc}}
}

// Name returns the module name
func (m *Module) Name() string { return "registry" }

// Ports returns the module ports
func (m *Module) Ports() Ports { return m.ports }
