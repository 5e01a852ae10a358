package module

import (
	"testing"
	"time"

	"searchbeat/internal/platform/config"
)

func TestFromConfig_Defaults(t *testing.T) {
	cfg := config.New()

	bing := FromConfig(cfg, ProviderBing)
	if bing.Enabled {
		t.Fatal("no credential means disabled")
	}
	if bing.TickInterval != 5*time.Minute {
		t.Fatalf("bing tick = %v", bing.TickInterval)
	}
	if bing.LockTTL != 120*time.Second || bing.RowLimit != 1000 {
		t.Fatalf("defaults = %+v", bing)
	}

	gsc := FromConfig(cfg, ProviderGSC)
	if gsc.TickInterval != time.Minute {
		t.Fatalf("gsc tick = %v", gsc.TickInterval)
	}
}

func TestFromConfig_CredentialEnables(t *testing.T) {
	t.Setenv("SEARCHBEAT_BING_CREDENTIAL", "key-1")

	opts := FromConfig(config.New(), ProviderBing)
	if !opts.Enabled || opts.Credential != "key-1" {
		t.Fatalf("opts = %+v", opts)
	}

	// explicit switch overrides the credential heuristic
	t.Setenv("SEARCHBEAT_BING_ENABLED", "false")
	if FromConfig(config.New(), ProviderBing).Enabled {
		t.Fatal("explicit disable must win")
	}
}

func TestFromConfig_EnvOverrides(t *testing.T) {
	t.Setenv("SEARCHBEAT_GSC_TICK_INTERVAL", "30s")
	t.Setenv("SEARCHBEAT_GSC_ROW_LIMIT", "250")
	t.Setenv("SEARCHBEAT_GSC_LOCK_HOLDER", "worker-7")

	opts := FromConfig(config.New(), ProviderGSC)
	if opts.TickInterval != 30*time.Second || opts.RowLimit != 250 || opts.Holder != "worker-7" {
		t.Fatalf("opts = %+v", opts)
	}
}
