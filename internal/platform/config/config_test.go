package config

import (
	"testing"
	"time"

	"searchbeat/internal/platform/testkit"
)

func TestPrefix_Composes(t *testing.T) {
	t.Setenv("SEARCHBEAT_BING_CREDENTIAL", "key-123")

	cfg := New().Prefix("SEARCHBEAT_").Prefix("BING_")
	if got := cfg.MustString("CREDENTIAL"); got != "key-123" {
		t.Fatalf("MustString = %q", got)
	}
}

func TestMustString_PanicsOnMissingOrBlank(t *testing.T) {
	cfg := New().Prefix("SEARCHBEAT_TEST_")

	testkit.MustPanic(t, func() { cfg.MustString("NOPE") })

	t.Setenv("SEARCHBEAT_TEST_BLANK", "   ")
	testkit.MustPanic(t, func() { cfg.MustString("BLANK") })
}

func TestMustURL(t *testing.T) {
	cfg := New().Prefix("SEARCHBEAT_TEST_")

	t.Setenv("SEARCHBEAT_TEST_BASE", "https://ssl.bing.com/webmaster/api.svc/json")
	u := cfg.MustURL("BASE")
	if u.Host != "ssl.bing.com" {
		t.Fatalf("host = %q", u.Host)
	}

	t.Setenv("SEARCHBEAT_TEST_BASE", "not a url")
	testkit.MustPanic(t, func() { cfg.MustURL("BASE") })
}

func TestMay_DefaultsAndParses(t *testing.T) {
	cfg := New().Prefix("SEARCHBEAT_TEST_")

	if got := cfg.MayString("MISSING", "fallback"); got != "fallback" {
		t.Fatalf("MayString = %q", got)
	}

	t.Setenv("SEARCHBEAT_TEST_ROW_LIMIT", "250")
	if got := cfg.MayInt("ROW_LIMIT", 1000); got != 250 {
		t.Fatalf("MayInt = %d", got)
	}
	t.Setenv("SEARCHBEAT_TEST_ROW_LIMIT", "ten")
	if got := cfg.MayInt("ROW_LIMIT", 1000); got != 1000 {
		t.Fatalf("MayInt on garbage = %d, want default", got)
	}

	t.Setenv("SEARCHBEAT_TEST_ENABLED", "false")
	if cfg.MayBool("ENABLED", true) {
		t.Fatal("MayBool should parse false")
	}

	t.Setenv("SEARCHBEAT_TEST_TICK", "90s")
	if got := cfg.MayDuration("TICK", 5*time.Minute); got != 90*time.Second {
		t.Fatalf("MayDuration = %v", got)
	}
	if got := cfg.MayDuration("NO_TICK", 5*time.Minute); got != 5*time.Minute {
		t.Fatalf("MayDuration default = %v", got)
	}
}

func TestMayPort(t *testing.T) {
	cfg := New().Prefix("SEARCHBEAT_TEST_")

	if got := cfg.MayPort("ADDR", ":4600"); got != ":4600" {
		t.Fatalf("default addr = %q", got)
	}

	t.Setenv("SEARCHBEAT_TEST_ADDR", "8080")
	if got := cfg.MayPort("ADDR", ":4600"); got != ":8080" {
		t.Fatalf("bare port = %q", got)
	}

	t.Setenv("SEARCHBEAT_TEST_ADDR", ":70000")
	testkit.MustPanic(t, func() { cfg.MayPort("ADDR", ":4600") })
}
