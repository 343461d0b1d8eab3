package e2e

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// BaseURL of a running circle backend; empty skips the suite
	BaseURL string `envconfig:"CIRCLE_BASE_URL"`
	// E2E_DEBUG_JSON allows dumping full HTTP request/response bodies as JSON
	DebugJSON bool `envconfig:"E2E_DEBUG_JSON" default:"false"`
	// E2E_COLOURS enables colorized output for better log readability
	Colours bool   `envconfig:"E2E_COLOURS" default:"true"`
	GroupID string `envconfig:"CIRCLE_GROUP_ID" default:"e2e-circle"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
