package config

import (
	"strings"
	"testing"

	"github.com/lenconda/exampro-agent/internal/domain"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("EXAMPRO_API_URL", "https://exam.example.com/api")
	t.Setenv("EXAMPRO_TOKEN", "env-token")
	t.Setenv("EXAMPRO_EXAM_ID", "42")
}

func TestLoad_FlagOverridesEnv(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load(Options{Token: "flag-token"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Token != "flag-token" {
		t.Errorf("Token = %q, want the flag value", cfg.Token)
	}
	if cfg.APIURL != "https://exam.example.com/api" {
		t.Errorf("APIURL = %q, want the env value", cfg.APIURL)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("EXAMPRO_TOKEN", "")

	_, err := Load(Options{})
	if err == nil || !strings.Contains(err.Error(), "EXAMPRO_TOKEN") {
		t.Errorf("Load error = %v, want it to name EXAMPRO_TOKEN", err)
	}
}

func TestLoad_RoleDefaultsAndValidation(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load(Options{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Role != domain.RoleParticipant {
		t.Errorf("Role = %q, want participant by default", cfg.Role)
	}

	if _, err := Load(Options{Role: "spectator"}); err == nil {
		t.Error("expected an error for an unknown role")
	}
}

func TestICEServers(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load(Options{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	servers := cfg.ICEServers()
	if len(servers) != 1 || servers[0].URL != DefaultSTUN {
		t.Fatalf("ICEServers = %+v, want just the default STUN server", servers)
	}

	t.Setenv("TURN_SERVER", "turn:turn.example.com:3478")
	t.Setenv("TURN_USERNAME", "user")
	t.Setenv("TURN_PASSWORD", "pass")
	cfg, err = Load(Options{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	servers = cfg.ICEServers()
	if len(servers) != 2 {
		t.Fatalf("ICEServers = %+v, want STUN plus TURN", servers)
	}
	if servers[1].Username != "user" || servers[1].Credential != "pass" {
		t.Errorf("TURN credentials not carried: %+v", servers[1])
	}
}
