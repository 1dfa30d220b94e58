package config

import (
	"strings"
	"testing"
)

type envTestConfig struct {
	Port int `env:"CAMPAIGNSYNC_TEST_PORT" envDefault:"123"`
}

func TestParseEnvDefaults(t *testing.T) {
	var cfg envTestConfig

	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Port != 123 {
		t.Fatalf("expected default port 123, got %d", cfg.Port)
	}
}

func TestParseEnvError(t *testing.T) {
	var cfg envTestConfig
	t.Setenv("CAMPAIGNSYNC_TEST_PORT", "not-an-int")

	err := ParseEnv(&cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env prefix, got %v", err)
	}
}

func TestRequireValuesListsMissingSorted(t *testing.T) {
	err := RequireValues(map[string]string{
		"realtime-url": " ",
		"campaign-id":  "",
		"api-base-url": "http://api",
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if got, want := err.Error(), "missing required settings: campaign-id, realtime-url"; got != want {
		t.Fatalf("error = %q, want %q", got, want)
	}
	if err := RequireValues(map[string]string{"campaign-id": "c1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
