package config

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config represents the application configuration
type Config struct {
	Server      ServerConfig      `json:"server"`
	Database    DatabaseConfig    `json:"database"`
	Auth        AuthConfig        `json:"auth"`
	Marketplace MarketplaceConfig `json:"marketplace"`
	Ledger      LedgerConfig      `json:"ledger"`
	Room        RoomConfig        `json:"room"`
	Log         LogConfig         `json:"log"`
}

// ServerConfig contains server related configurations
type ServerConfig struct {
	Port           int      `json:"port"`
	AllowedOrigins []string `json:"allowed_origins"`
}

// DatabaseConfig contains database related configurations.
// An empty Host disables persistence of ledger activity.
type DatabaseConfig struct {
	Driver   string `json:"driver"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// Enabled reports whether a database is configured
func (c DatabaseConfig) Enabled() bool {
	return c.Host != ""
}

// AuthConfig contains authentication related configurations
type AuthConfig struct {
	JWTSecret     string `json:"jwt_secret"`
	JWTExpiration int    `json:"jwt_expiration"` // in hours
}

// MarketplaceConfig contains settings for the NFT indexing API
type MarketplaceConfig struct {
	BaseURL           string  `json:"base_url"`
	Token             string  `json:"token"`
	PageSize          int     `json:"page_size"`
	RequestsPerSecond float64 `json:"requests_per_second"`
	Burst             int     `json:"burst"`
	// RequestTimeout of zero means outbound requests never time out.
	RequestTimeout Duration `json:"request_timeout"`
}

// LedgerConfig contains settings for the ledger transaction stream
type LedgerConfig struct {
	URL string `json:"url"`
	// BrokerFeeThreshold is the fee (in drops) above which an acceptance is
	// treated as brokered.
	BrokerFeeThreshold string `json:"broker_fee_threshold"`
}

// RoomConfig contains chat room integration settings
type RoomConfig struct {
	ServiceAccount string `json:"service_account"`
	BrokerWallet   string `json:"broker_wallet"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level       string `json:"level"`
	Development bool   `json:"development"`
}

// Duration is a time.Duration that decodes from a JSON string such as "30s"
type Duration struct {
	time.Duration
}

// UnmarshalJSON accepts either a duration string or a number of nanoseconds
func (d *Duration) UnmarshalJSON(b []byte) error {
	var raw interface{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case float64:
		d.Duration = time.Duration(v)
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", v, err)
		}
		d.Duration = parsed
	default:
		return fmt.Errorf("invalid duration %v", raw)
	}
	return nil
}

// MarshalJSON encodes the duration as a string
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// Load loads the configuration from file and environment
func Load() (*Config, error) {
	cfg := Default()

	// Look for config file
	configFile := os.Getenv("CONFIG_FILE")
	if configFile == "" {
		configFile = filepath.Join("configs", "config.json")
	}

	if _, err := os.Stat(configFile); err == nil {
		file, err := os.Open(configFile)
		if err != nil {
			return nil, err
		}
		defer file.Close()

		if err := json.NewDecoder(file).Decode(cfg); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", configFile, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if cfg.Auth.JWTSecret == "" {
		// Generate a random JWT secret if not provided
		randomBytes := make([]byte, 32)
		if _, err := rand.Read(randomBytes); err != nil {
			return nil, err
		}
		cfg.Auth.JWTSecret = base64.StdEncoding.EncodeToString(randomBytes)
	}

	return cfg, nil
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           8080,
			AllowedOrigins: []string{"*"},
		},
		Database: DatabaseConfig{
			Driver: "postgres",
			Port:   5432,
			Name:   "roomtrade",
		},
		Auth: AuthConfig{
			JWTExpiration: 24,
		},
		Marketplace: MarketplaceConfig{
			BaseURL:           "https://bithomp.com/api/v2",
			PageSize:          400,
			RequestsPerSecond: 5,
			Burst:             10,
		},
		Ledger: LedgerConfig{
			URL:                "wss://xrplcluster.com",
			BrokerFeeThreshold: "15",
		},
		Room: RoomConfig{
			ServiceAccount: "@tokengatebot:synapse.textrp.io",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// applyEnv overrides configuration values with environment variables if present
func applyEnv(cfg *Config) error {
	if port := os.Getenv("SERVER_PORT"); port != "" {
		var serverPort int
		if _, err := fmt.Sscanf(port, "%d", &serverPort); err == nil {
			cfg.Server.Port = serverPort
		}
	}
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.Server.AllowedOrigins = splitList(origins)
	}

	if dbHost := os.Getenv("DB_HOST"); dbHost != "" {
		cfg.Database.Host = dbHost
	}
	if dbPort := os.Getenv("DB_PORT"); dbPort != "" {
		var databasePort int
		if _, err := fmt.Sscanf(dbPort, "%d", &databasePort); err == nil {
			cfg.Database.Port = databasePort
		}
	}
	if dbUser := os.Getenv("DB_USER"); dbUser != "" {
		cfg.Database.User = dbUser
	}
	if dbPass := os.Getenv("DB_PASSWORD"); dbPass != "" {
		cfg.Database.Password = dbPass
	}
	if dbName := os.Getenv("DB_NAME"); dbName != "" {
		cfg.Database.Name = dbName
	}

	if jwtSecret := os.Getenv("JWT_SECRET"); jwtSecret != "" {
		cfg.Auth.JWTSecret = jwtSecret
	}

	if baseURL := os.Getenv("MARKETPLACE_URL"); baseURL != "" {
		cfg.Marketplace.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if token := os.Getenv("MARKETPLACE_TOKEN"); token != "" {
		cfg.Marketplace.Token = token
	}
	if pageSize := os.Getenv("MARKETPLACE_PAGE_SIZE"); pageSize != "" {
		n, err := strconv.Atoi(pageSize)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid MARKETPLACE_PAGE_SIZE %q", pageSize)
		}
		cfg.Marketplace.PageSize = n
	}
	if timeout := os.Getenv("MARKETPLACE_TIMEOUT"); timeout != "" {
		d, err := time.ParseDuration(timeout)
		if err != nil {
			return fmt.Errorf("invalid MARKETPLACE_TIMEOUT %q: %w", timeout, err)
		}
		cfg.Marketplace.RequestTimeout = Duration{d}
	}

	if ledgerURL := os.Getenv("LEDGER_URL"); ledgerURL != "" {
		cfg.Ledger.URL = ledgerURL
	}
	if fee := os.Getenv("BROKER_FEE_THRESHOLD"); fee != "" {
		cfg.Ledger.BrokerFeeThreshold = fee
	}

	if account := os.Getenv("ROOM_SERVICE_ACCOUNT"); account != "" {
		cfg.Room.ServiceAccount = account
	}
	if broker := os.Getenv("BROKER_WALLET"); broker != "" {
		cfg.Room.BrokerWallet = strings.TrimSpace(broker)
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
	if dev := os.Getenv("LOG_DEVELOPMENT"); dev != "" {
		cfg.Log.Development = dev == "true" || dev == "1"
	}

	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
