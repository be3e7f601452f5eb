package timeline

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// profileFile is the on-disk shape of a timeline profile. Durations are
// required; start offsets are optional and, when present, must agree with
// the cumulative layout.
type profileFile struct {
	Timeline struct {
		SecretMessageStart    *int64 `yaml:"secret_message_start_sec"`
		SecretMessageDuration *int64 `yaml:"secret_message_duration_sec"`
		CupidInterimStart     *int64 `yaml:"cupid_interim_start_sec"`
		CupidInterimDuration  *int64 `yaml:"cupid_interim_duration_sec"`
		CupidMainStart        *int64 `yaml:"cupid_main_start_sec"`
		CupidMainDuration     *int64 `yaml:"cupid_main_duration_sec"`
		PostCupidDuration     *int64 `yaml:"post_cupid_duration_sec"`
	} `yaml:"timeline"`
}

// LoadConfig reads a YAML timeline profile. An empty path returns DefaultConfig.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read timeline profile: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes a YAML timeline profile on top of the defaults and validates it.
func ParseConfig(data []byte) (Config, error) {
	var pf profileFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&pf); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to parse timeline profile: %w", err)
	}

	p := pf.Timeline
	def := DefaultConfig()
	cfg := NewConfig(
		valueOr(p.SecretMessageStart, def.SecretMessageStart),
		valueOr(p.SecretMessageDuration, def.SecretMessageDuration),
		valueOr(p.CupidInterimDuration, def.CupidInterimDuration),
		valueOr(p.CupidMainDuration, def.CupidMainDuration),
		valueOr(p.PostCupidDuration, def.PostCupidDuration),
	)
	// explicit offsets override the derived ones so Validate can reject a mismatch
	if p.CupidInterimStart != nil {
		cfg.CupidInterimStart = *p.CupidInterimStart
	}
	if p.CupidMainStart != nil {
		cfg.CupidMainStart = *p.CupidMainStart
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func valueOr(v *int64, fallback int64) int64 {
	if v == nil {
		return fallback
	}
	return *v
}
