// Package config loads agent configuration from CLI flags, environment
// variables, and an optional .env file, in that order of precedence.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/lenconda/exampro-agent/internal/domain"
)

// Default ICE configuration.
const (
	DefaultSTUN = "stun:stun.l.google.com:19302"
)

// Config holds the agent configuration.
type Config struct {
	APIURL string
	Token  string
	ExamID string

	// RelayURL, when set, overrides the relay endpoint from the room ticket.
	RelayURL string

	Role     domain.Role
	Identity string

	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
}

// Options carry CLI flag overrides, which take precedence over environment
// variables and .env values.
type Options struct {
	APIURL   string
	Token    string
	ExamID   string
	RelayURL string
	Role     string
	Identity string
}

// Load reads configuration from a .env file (if present) and environment
// variables, applying flag overrides on top.
func Load(opts Options) (*Config, error) {
	// godotenv.Load does not overwrite existing env vars
	_ = godotenv.Load()

	apiURL := pick(opts.APIURL, "EXAMPRO_API_URL", "")
	if apiURL == "" {
		return nil, fmt.Errorf("EXAMPRO_API_URL is required")
	}
	token := pick(opts.Token, "EXAMPRO_TOKEN", "")
	if token == "" {
		return nil, fmt.Errorf("EXAMPRO_TOKEN is required")
	}
	examID := pick(opts.ExamID, "EXAMPRO_EXAM_ID", "")
	if examID == "" {
		return nil, fmt.Errorf("EXAMPRO_EXAM_ID is required")
	}

	role := domain.Role(pick(opts.Role, "EXAMPRO_ROLE", string(domain.RoleParticipant)))
	if role != domain.RoleParticipant && role != domain.RoleInvigilator {
		return nil, fmt.Errorf("invalid role %q", role)
	}

	return &Config{
		APIURL:     apiURL,
		Token:      token,
		ExamID:     examID,
		RelayURL:   pick(opts.RelayURL, "EXAMPRO_RELAY_URL", ""),
		Role:       role,
		Identity:   pick(opts.Identity, "EXAMPRO_IDENTITY", ""),
		STUNServer: pick("", "STUN_SERVER", DefaultSTUN),
		TURNServer: pick("", "TURN_SERVER", ""),
		TURNUser:   pick("", "TURN_USERNAME", ""),
		TURNPass:   pick("", "TURN_PASSWORD", ""),
	}, nil
}

// pick resolves one value: flag > env > default.
func pick(flag, env, def string) string {
	if flag != "" {
		return flag
	}
	if v := os.Getenv(env); v != "" {
		return v
	}
	return def
}

// ICEServers returns the configured STUN/TURN servers.
func (c *Config) ICEServers() []domain.ICEServer {
	servers := []domain.ICEServer{{URL: c.STUNServer}}
	if c.TURNServer != "" {
		servers = append(servers, domain.ICEServer{
			URL:        c.TURNServer,
			Username:   c.TURNUser,
			Credential: c.TURNPass,
		})
	}
	return servers
}
