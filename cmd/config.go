package main

import (
	"fmt"
	"time"
)

type Config struct {
	LogLevel        string        `env:"LOG_LEVEL,required=true"`
	Port            int           `env:"PORT,required=true"`
	BadgerFilepath  string        `env:"BADGER_FILEPATH,required=true"`
	BufferSize      int           `env:"BUFFER_SIZE,required=true"`
	RestartInterval time.Duration `env:"RESTART_INTERVAL,required=true"`
	MetricInterval  time.Duration `env:"METRIC_INTERVAL,required=true"`
	CharReplacement string        `env:"CHARACTER_REPLACEMENT,required=true"`
	LimitMessages   *int          `env:"LIMIT_MESSAGES"`
	AudioChunkTTL   time.Duration `env:"AUDIO_CHUNK_TTL,required=true"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,required=true"`

	FacilitatorEndpoint string `env:"FACILITATOR_ENDPOINT,required=true"`
	FacilitatorAPIKey   string `env:"FACILITATOR_API_KEY"`
	FacilitatorConfigID string `env:"FACILITATOR_CONFIG_ID"`
	FacilitatorID       string `env:"FACILITATOR_ID"`

	MediaAppID    string        `env:"MEDIA_APP_ID"`
	MediaAppCert  string        `env:"MEDIA_APP_CERTIFICATE"`
	MediaTokenTTL time.Duration `env:"MEDIA_TOKEN_TTL,required=true"`
}

func (c Config) CharacterRune() (rune, error) {
	r := []rune(c.CharReplacement)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			c.CharReplacement,
		)
	}
	return r[0], nil
}
