package ch

import (
	"os"
	"runtime"
	"strings"

	"github.com/ClickHouse/clickhouse-go/v2"
)

// BuildClientInfo returns a ClientInfo describing this process and role.
// role examples: "scheduler", "backfill"
func BuildClientInfo(app, role string) clickhouse.ClientInfo {
	host, _ := os.Hostname()

	type kv = struct{ Name, Version string }
	if app == "" {
		app = "searchbeat"
	}

	return clickhouse.ClientInfo{Products: []kv{
		{Name: app, Version: safe(role)},
		{Name: "go", Version: safe(runtime.Version())},
		{Name: "host", Version: safe(host)},
	}}
}

func safe(s string) string { return strings.TrimSpace(s) }
