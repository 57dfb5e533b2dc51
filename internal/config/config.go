package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Auth struct {
		Secret string `yaml:"secret"`
	} `yaml:"auth"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Quiz struct {
		TTL string `yaml:"ttl"`
	} `yaml:"quiz"`
	Game struct {
		TimePerQuestion          string `yaml:"timePerQuestion"`
		BasePoints               int    `yaml:"basePoints"`
		MaxSpeedBonus            int    `yaml:"maxSpeedBonus"`
		SkewTolerance            string `yaml:"skewTolerance"`
		GracePeriod              string `yaml:"gracePeriod"`
		RevealDelay              string `yaml:"revealDelay"`
		CompletedRetention       string `yaml:"completedRetention"`
		InterruptedRetention     string `yaml:"interruptedRetention"`
		LeaderboardSize          int    `yaml:"leaderboardSize"`
		AllowLateJoin            bool   `yaml:"allowLateJoin"`
		ShowLeaderboardAfterEach bool   `yaml:"showLeaderboardAfterEach"`
	} `yaml:"game"`
}

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// TTLDuration parses a duration string or returns the fallback if empty or invalid.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
