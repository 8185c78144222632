package seed

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type LookupFunc func(string) (string, bool)

const dateLayout = "2006-01-02"

type Config struct {
	Products  int
	Days      int
	StartDate time.Time
	Seed      int64
}

func DefaultConfig() Config {
	return Config{
		Products:  20,
		Days:      30,
		StartDate: time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC),
		Seed:      42,
	}
}

func LoadConfigFromEnv(lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	cfg := DefaultConfig()
	if err := applyInt(lookup, "SHOPSQL_SEED_PRODUCTS", &cfg.Products); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "SHOPSQL_SEED_DAYS", &cfg.Days); err != nil {
		return Config{}, err
	}
	if err := applyDate(lookup, "SHOPSQL_SEED_START_DATE", &cfg.StartDate); err != nil {
		return Config{}, err
	}
	if err := applyInt64(lookup, "SHOPSQL_SEED_RANDOM_SEED", &cfg.Seed); err != nil {
		return Config{}, err
	}

	if cfg.Products <= 0 {
		return Config{}, fmt.Errorf("SHOPSQL_SEED_PRODUCTS must be > 0")
	}
	if cfg.Days <= 0 {
		return Config{}, fmt.Errorf("SHOPSQL_SEED_DAYS must be > 0")
	}
	return cfg, nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}

func applyInt64(lookup LookupFunc, key string, dst *int64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}

func applyDate(lookup LookupFunc, key string, dst *time.Time) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	v, err := time.Parse(dateLayout, strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}
