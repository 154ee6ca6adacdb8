package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"

	"deltastake/core/cycle"
	"deltastake/native/staking"
	"deltastake/observability/logging"
	"deltastake/observability/otel"
)

const (
	DefaultListenAddress = ":8080"
	DefaultJWTSecretEnv  = "STAKINGD_JWT_SECRET"
	DefaultIndexerDriver = "sqlite"

	DefaultWebhookSecretEnv = "STAKINGD_WEBHOOK_SECRET"
)

// Config is the stakingd node configuration.
type Config struct {
	DataDir     string `toml:"DataDir"`
	Environment string `toml:"Environment"`
	Owner       string `toml:"Owner"`
	Collection  string `toml:"Collection"`
	PoolAddress string `toml:"PoolAddress"`

	Cycle     cycle.Config       `toml:"Cycle"`
	Staking   StakingConfig      `toml:"Staking"`
	API       APIConfig          `toml:"API"`
	Indexer   IndexerConfig      `toml:"Indexer"`
	Webhook   WebhookConfig      `toml:"Webhook"`
	Telemetry otel.Config        `toml:"Telemetry"`
	LogFile   logging.FileConfig `toml:"LogFile"`
}

// StakingConfig carries the token admission rules.
type StakingConfig struct {
	TokenType     uint              `toml:"TokenType"`
	Seasons       []uint            `toml:"Seasons"`
	RarityWeights map[string]uint64 `toml:"RarityWeights"`
	FreezeCycles  uint64            `toml:"FreezeCycles"`
}

// APIConfig controls the HTTP listener.
type APIConfig struct {
	ListenAddress     string  `toml:"ListenAddress"`
	JWTSecretEnv      string  `toml:"JWTSecretEnv"`
	JWTIssuer         string  `toml:"JWTIssuer"`
	JWTAudience       string  `toml:"JWTAudience"`
	RequestsPerMinute float64 `toml:"RequestsPerMinute"`
	Burst             int     `toml:"Burst"`
	// DevMint serves the owner-only mint route. Rejected in production.
	DevMint bool `toml:"DevMint"`
}

// IndexerConfig selects the event index database. An empty DSN disables it.
type IndexerConfig struct {
	Driver string `toml:"Driver"`
	DSN    string `toml:"DSN"`
}

// WebhookConfig forwards events to an HTTP endpoint. An empty URL disables it.
type WebhookConfig struct {
	URL       string   `toml:"URL"`
	SecretEnv string   `toml:"SecretEnv"`
	Events    []string `toml:"Events"`
}

var rarityNames = map[string]uint8{
	"common":    staking.RarityCommon,
	"epic":      staking.RarityEpic,
	"legendary": staking.RarityLegendary,
	"apex":      staking.RarityApex,
}

// Load loads the configuration from the given path, writing a default file
// when none exists.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	cfg := &Config{}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s has unknown key %s", path, undecoded[0])
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./stakingd-data"
	}
	if strings.TrimSpace(c.Environment) == "" {
		c.Environment = "local"
	}
	if c.Cycle == (cycle.Config{}) {
		c.Cycle = cycle.DefaultConfig()
	}
	if c.Staking.TokenType == 0 {
		c.Staking.TokenType = uint(staking.TokenTypeCar)
	}
	if len(c.Staking.Seasons) == 0 {
		c.Staking.Seasons = []uint{uint(staking.Season2019), uint(staking.Season2020)}
	}
	if len(c.Staking.RarityWeights) == 0 {
		c.Staking.RarityWeights = map[string]uint64{"common": 1, "epic": 10, "legendary": 100, "apex": 500}
	}
	if c.Staking.FreezeCycles == 0 {
		c.Staking.FreezeCycles = staking.DefaultFreezeCycles
	}
	if strings.TrimSpace(c.API.ListenAddress) == "" {
		c.API.ListenAddress = DefaultListenAddress
	}
	if strings.TrimSpace(c.API.JWTSecretEnv) == "" {
		c.API.JWTSecretEnv = DefaultJWTSecretEnv
	}
	if strings.TrimSpace(c.Webhook.SecretEnv) == "" {
		c.Webhook.SecretEnv = DefaultWebhookSecretEnv
	}
	if strings.TrimSpace(c.Indexer.Driver) == "" {
		c.Indexer.Driver = DefaultIndexerDriver
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "stakingd"
	}
	if c.Telemetry.Environment == "" {
		c.Telemetry.Environment = c.Environment
	}
}

// Validate checks the fields the daemon cannot run without.
func (c *Config) Validate() error {
	addresses := []struct{ name, value string }{
		{"Owner", c.Owner},
		{"Collection", c.Collection},
		{"PoolAddress", c.PoolAddress},
	}
	for _, addr := range addresses {
		value := strings.TrimSpace(addr.value)
		if !common.IsHexAddress(value) {
			return fmt.Errorf("config: %s must be a hex address, got %q", addr.name, addr.value)
		}
		if common.HexToAddress(value) == (common.Address{}) {
			return fmt.Errorf("config: %s must not be the zero address", addr.name)
		}
	}
	if err := c.Cycle.Validate(); err != nil {
		return err
	}
	if c.Staking.TokenType > math.MaxUint8 {
		return fmt.Errorf("config: token type %d out of range", c.Staking.TokenType)
	}
	for _, season := range c.Staking.Seasons {
		if season > math.MaxUint8 {
			return fmt.Errorf("config: season %d out of range", season)
		}
	}
	for name := range c.Staking.RarityWeights {
		if _, ok := rarityNames[strings.ToLower(name)]; !ok {
			return fmt.Errorf("config: unknown rarity %q", name)
		}
	}
	switch strings.ToLower(c.Indexer.Driver) {
	case "sqlite", "postgres", "postgresql":
	default:
		return fmt.Errorf("config: unsupported indexer driver %q", c.Indexer.Driver)
	}
	if c.API.RequestsPerMinute < 0 || c.API.Burst < 0 {
		return fmt.Errorf("config: rate limits must not be negative")
	}
	if err := c.Telemetry.Validate(); err != nil {
		return err
	}
	if c.API.DevMint && c.IsProduction() {
		return fmt.Errorf("config: API.DevMint is not allowed in environment %q", c.Environment)
	}
	return nil
}

// IsProduction reports whether the node runs in a production environment.
func (c *Config) IsProduction() bool {
	switch strings.ToLower(strings.TrimSpace(c.Environment)) {
	case "prod", "production", "mainnet":
		return true
	}
	return false
}

// StakingParams converts the configuration into engine parameters.
func (c *Config) StakingParams() (staking.Params, error) {
	if err := c.Validate(); err != nil {
		return staking.Params{}, err
	}
	params := staking.DefaultParams(parseAddress(c.Owner), parseAddress(c.Collection))
	params.Cycle = c.Cycle
	params.TokenType = uint8(c.Staking.TokenType)
	params.Seasons = make([]uint8, len(c.Staking.Seasons))
	for i, season := range c.Staking.Seasons {
		params.Seasons[i] = uint8(season)
	}
	params.FreezeCycles = c.Staking.FreezeCycles
	params.RarityWeights = make(map[uint8]uint64, len(c.Staking.RarityWeights))
	for name, weight := range c.Staking.RarityWeights {
		params.RarityWeights[rarityNames[strings.ToLower(name)]] = weight
	}
	if err := params.Validate(); err != nil {
		return staking.Params{}, err
	}
	return params, nil
}

// Pool returns the pool account address.
func (c *Config) Pool() common.Address { return parseAddress(c.PoolAddress) }

func parseAddress(raw string) common.Address {
	return common.HexToAddress(strings.TrimSpace(raw))
}

// JWTSecret resolves the bearer token secret from the environment.
func (c *Config) JWTSecret() (string, error) {
	secret := strings.TrimSpace(os.Getenv(c.API.JWTSecretEnv))
	if secret == "" {
		return "", fmt.Errorf("config: environment variable %s is empty", c.API.JWTSecretEnv)
	}
	return secret, nil
}

// WebhookSecret resolves the webhook signing secret from the environment.
func (c *Config) WebhookSecret() ([]byte, error) {
	secret := strings.TrimSpace(os.Getenv(c.Webhook.SecretEnv))
	if secret == "" {
		return nil, fmt.Errorf("config: environment variable %s is empty", c.Webhook.SecretEnv)
	}
	return []byte(secret), nil
}

// createDefault creates and saves a default configuration file. Addresses are
// left blank and must be filled in before the daemon validates the file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		Indexer: IndexerConfig{DSN: "file:stakingd-events.db"},
		API:     APIConfig{RequestsPerMinute: 120, Burst: 20},
		LogFile: logging.FileConfig{MaxSizeMB: 100, MaxBackups: 5, MaxAgeDays: 28},
	}
	cfg.applyDefaults()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
