package module

import (
	"strings"
	"time"

	"searchbeat/internal/platform/config"
)

// Provider names the module can wire
const (
	ProviderBing = "bing"
	ProviderGSC  = "gsc"
)

// Options controls one provider's ingest loop. Values may also be read
// from env under SEARCHBEAT_<PROVIDER>_
type Options struct {
	Provider   string
	Enabled    bool
	BaseURL    string
	Credential string

	TickInterval time.Duration
	LockTTL      time.Duration
	RowLimit     int
	Holder       string
}

// FromConfig reads a provider's options. The tick default differs per
// provider: the bing loop wakes every 5 minutes, the gsc loop every minute
func FromConfig(cfg config.Conf, provider string) Options {
	pc := cfg.Prefix("SEARCHBEAT_" + strings.ToUpper(provider) + "_")

	tick := 5 * time.Minute
	if provider == ProviderGSC {
		tick = time.Minute
	}

	cred := pc.MayString("CREDENTIAL", "")
	return Options{
		Provider:     provider,
		Enabled:      pc.MayBool("ENABLED", cred != ""),
		BaseURL:      pc.MayString("BASE_URL", ""),
		Credential:   cred,
		TickInterval: pc.MayDuration("TICK_INTERVAL", tick),
		LockTTL:      pc.MayDuration("LOCK_TTL", 120*time.Second),
		RowLimit:     pc.MayInt("ROW_LIMIT", 1000),
		Holder:       pc.MayString("LOCK_HOLDER", ""),
	}
}
