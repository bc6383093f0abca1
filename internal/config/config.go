package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// ARCHITECTURAL DISCOVERY: Configuration layer serves as system-wide settings
// coordinator - clean separation between settings and business logic
type Config struct {
	Database *DatabaseConfig `json:"database"`
	Client   *ClientConfig   `json:"client"`
	Services *ServicesConfig `json:"services"`
	Files    *FilesConfig    `json:"files"`
}

// DatabaseConfig locates the durable site store
type DatabaseConfig struct {
	Path    string        `json:"path"`
	Timeout time.Duration `json:"timeout"`
}

// ClientConfig tunes the RPC transport
type ClientConfig struct {
	RequestTimeout time.Duration `json:"request_timeout"`
	ConnectTimeout time.Duration `json:"connect_timeout"`
}

// ServicesConfig names the web services requested during authentication
// FUNCTIONAL DISCOVERY: The default service is the fallback when no cached
// extended service matches a site; both names are server-side conventions
type ServicesConfig struct {
	Default  string `json:"default"`
	Extended string `json:"extended"`
}

// FilesConfig roots the local file cache
type FilesConfig struct {
	CacheRoot       string        `json:"cache_root"`
	DownloadTimeout time.Duration `json:"download_timeout"`
}

// DefaultConfig returns production-ready defaults
func DefaultConfig() *Config {
	return &Config{
		Database: &DatabaseConfig{
			Path:    "./data/sitekeeper.db",
			Timeout: 30 * time.Second,
		},
		Client: &ClientConfig{
			RequestTimeout: 30 * time.Second,
			ConnectTimeout: 15 * time.Second,
		},
		Services: &ServicesConfig{
			Default:  "moodle_mobile_app",
			Extended: "local_mobile",
		},
		Files: &FilesConfig{
			CacheRoot:       "./data/filecache",
			DownloadTimeout: 5 * time.Minute,
		},
	}
}

// Validate prevents invalid system configurations from reaching components
func (c *Config) Validate() error {
	if c.Database == nil {
		return fmt.Errorf("database configuration is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if c.Database.Timeout <= 0 {
		return fmt.Errorf("database timeout must be positive")
	}
	if c.Client == nil {
		return fmt.Errorf("client configuration is required")
	}
	if c.Client.RequestTimeout <= 0 {
		return fmt.Errorf("client request timeout must be positive")
	}
	if c.Client.ConnectTimeout <= 0 {
		return fmt.Errorf("client connect timeout must be positive")
	}
	if c.Services == nil {
		return fmt.Errorf("services configuration is required")
	}
	if c.Services.Default == "" {
		return fmt.Errorf("default service name cannot be empty")
	}
	if c.Services.Extended == "" {
		return fmt.Errorf("extended service name cannot be empty")
	}
	if c.Files == nil {
		return fmt.Errorf("files configuration is required")
	}
	if c.Files.CacheRoot == "" {
		return fmt.Errorf("file cache root cannot be empty")
	}
	if c.Files.DownloadTimeout <= 0 {
		return fmt.Errorf("download timeout must be positive")
	}
	return nil
}

// LoadFromEnv overrides defaults with SITEKEEPER_* environment variables
// FUNCTIONAL DISCOVERY: Environment overrides with silent fallback on parse
// errors keep a misconfigured variable from failing startup
func LoadFromEnv() *Config {
	config := DefaultConfig()

	if dbPath := os.Getenv("SITEKEEPER_DATABASE_PATH"); dbPath != "" {
		config.Database.Path = dbPath
	}
	if dbTimeout := os.Getenv("SITEKEEPER_DATABASE_TIMEOUT"); dbTimeout != "" {
		if timeout, err := time.ParseDuration(dbTimeout); err == nil {
			config.Database.Timeout = timeout
		}
	}
	if requestTimeout := os.Getenv("SITEKEEPER_REQUEST_TIMEOUT"); requestTimeout != "" {
		if timeout, err := time.ParseDuration(requestTimeout); err == nil {
			config.Client.RequestTimeout = timeout
		}
	}
	if connectTimeout := os.Getenv("SITEKEEPER_CONNECT_TIMEOUT"); connectTimeout != "" {
		if timeout, err := time.ParseDuration(connectTimeout); err == nil {
			config.Client.ConnectTimeout = timeout
		}
	}
	if defaultService := os.Getenv("SITEKEEPER_DEFAULT_SERVICE"); defaultService != "" {
		config.Services.Default = defaultService
	}
	if extendedService := os.Getenv("SITEKEEPER_EXTENDED_SERVICE"); extendedService != "" {
		config.Services.Extended = extendedService
	}
	if cacheRoot := os.Getenv("SITEKEEPER_CACHE_ROOT"); cacheRoot != "" {
		config.Files.CacheRoot = cacheRoot
	}
	if downloadTimeout := os.Getenv("SITEKEEPER_DOWNLOAD_TIMEOUT"); downloadTimeout != "" {
		if timeout, err := time.ParseDuration(downloadTimeout); err == nil {
			config.Files.DownloadTimeout = timeout
		}
	}

	return config
}

// ConfigFile is the JSON structure for file-based configuration
// FUNCTIONAL DISCOVERY: Separate struct for JSON parsing to handle duration
// strings ("30s") instead of raw nanosecond integers
type ConfigFile struct {
	Database *DatabaseConfigFile `json:"database"`
	Client   *ClientConfigFile   `json:"client"`
	Services *ServicesConfig     `json:"services"`
	Files    *FilesConfigFile    `json:"files"`
}

type DatabaseConfigFile struct {
	Path    string `json:"path"`
	Timeout string `json:"timeout"`
}

type ClientConfigFile struct {
	RequestTimeout string `json:"request_timeout"`
	ConnectTimeout string `json:"connect_timeout"`
}

type FilesConfigFile struct {
	CacheRoot       string `json:"cache_root"`
	DownloadTimeout string `json:"download_timeout"`
}

// LoadFromFile reads JSON configuration from disk
func LoadFromFile(filepath string) (*Config, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filepath, err)
	}

	var configFile ConfigFile
	if err := json.Unmarshal(data, &configFile); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", filepath, err)
	}

	config := DefaultConfig()

	if configFile.Database != nil {
		if configFile.Database.Path != "" {
			config.Database.Path = configFile.Database.Path
		}
		if configFile.Database.Timeout != "" {
			if timeout, err := time.ParseDuration(configFile.Database.Timeout); err == nil {
				config.Database.Timeout = timeout
			}
		}
	}
	if configFile.Client != nil {
		if configFile.Client.RequestTimeout != "" {
			if timeout, err := time.ParseDuration(configFile.Client.RequestTimeout); err == nil {
				config.Client.RequestTimeout = timeout
			}
		}
		if configFile.Client.ConnectTimeout != "" {
			if timeout, err := time.ParseDuration(configFile.Client.ConnectTimeout); err == nil {
				config.Client.ConnectTimeout = timeout
			}
		}
	}
	if configFile.Services != nil {
		if configFile.Services.Default != "" {
			config.Services.Default = configFile.Services.Default
		}
		if configFile.Services.Extended != "" {
			config.Services.Extended = configFile.Services.Extended
		}
	}
	if configFile.Files != nil {
		if configFile.Files.CacheRoot != "" {
			config.Files.CacheRoot = configFile.Files.CacheRoot
		}
		if configFile.Files.DownloadTimeout != "" {
			if timeout, err := time.ParseDuration(configFile.Files.DownloadTimeout); err == nil {
				config.Files.DownloadTimeout = timeout
			}
		}
	}

	// Validate after loading to catch errors early
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", filepath, err)
	}

	return config, nil
}

// LoadConfigWithPrecedence resolves configuration as file > env > defaults
func LoadConfigWithPrecedence(filepath string) *Config {
	config := LoadFromEnv()

	if filepath != "" {
		if fileConfig, err := LoadFromFile(filepath); err == nil {
			config = fileConfig
		}
		// Silently ignore file errors - environment/defaults still work
	}

	return config
}
