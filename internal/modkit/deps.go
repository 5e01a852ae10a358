// Package modkit provides module wiring and core deps
package modkit

import (
	"searchbeat/internal/modkit/repokit"
	"searchbeat/internal/platform/config"
	"searchbeat/internal/platform/logger"
	"searchbeat/internal/platform/store"
)

// Deps holds core dependencies passed to modules.
// This is wiring only and does not introduce new abstractions
type Deps struct {
	Log logger.Logger
	Cfg config.Conf
	PG  repokit.TxRunner
	CH  store.Clickhouse
}
