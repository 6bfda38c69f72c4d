package config

import (
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"
)

// Seed lists the accounts opened at startup when no database is configured.
type Seed struct {
	Accounts []SeedAccount `yaml:"accounts" json:"accounts"`
}

// SeedAccount keeps money as strings so no float rounding happens on load.
type SeedAccount struct {
	ID         string `yaml:"id" json:"id"`
	Number     string `yaml:"number" json:"number"`
	OwnerID    string `yaml:"owner_id" json:"owner_id"`
	Type       string `yaml:"type" json:"type"`
	Balance    string `yaml:"balance" json:"balance"`
	DailyLimit string `yaml:"daily_limit" json:"daily_limit"`
}

// LoadSeed reads a YAML or JSON seed file, picked by extension.
func LoadSeed(path string) (*Seed, error) {
	seed := &Seed{}
	if err := cleanenv.ReadConfig(path, seed); err != nil {
		return nil, fmt.Errorf("couldn't read seed file %s: %w", path, err)
	}
	return seed, nil
}
