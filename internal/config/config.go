package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the gateway.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Store         StoreConfig         `yaml:"store"`
	Redis         RedisConfig         `yaml:"redis"`
	IP2Location   IP2LocationConfig   `yaml:"ip2location"`
	Blacklist     BlacklistConfig     `yaml:"blacklist"`
	RedirectCache RedirectCacheConfig `yaml:"redirect_cache"`
	WriteBehind   WriteBehindConfig   `yaml:"write_behind"`
	Signatures    SignatureConfig     `yaml:"signatures"`
	Dispatch      DispatchConfig      `yaml:"dispatch"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// GetHost returns the server host, with ECS detection.
func (c ServerConfig) GetHost() string {
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// StoreConfig holds Postgres connection settings.
type StoreConfig struct {
	DatabaseURL     string `yaml:"database_url"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime_minutes"`
	UseIAMAuth      bool   `yaml:"use_iam_auth"`
	AWSRegion       string `yaml:"aws_region"`
	AWSProfile      string `yaml:"aws_profile"` // Empty string uses default credential chain (IAM role on ECS)
}

// ConnLifetime returns the configured connection lifetime as a duration.
func (c StoreConfig) ConnLifetime() time.Duration {
	return time.Duration(c.ConnMaxLifetime) * time.Minute
}

// GetAWSProfile returns the AWS profile to use when resolving IAM
// database credentials, with environment variable override.
func (c StoreConfig) GetAWSProfile() string {
	if envProfile := os.Getenv("AWS_PROFILE_OVERRIDE"); envProfile != "" {
		if envProfile == "none" || envProfile == "iam" {
			return ""
		}
		return envProfile
	}
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return ""
	}
	return c.AWSProfile
}

// RedisConfig holds Redis connection settings, used for the distributed
// lock and the Redis health check.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// IP2LocationConfig holds the third-party IP intelligence provider's
// connection settings.
type IP2LocationConfig struct {
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxRetries     int    `yaml:"max_retries"`
}

// Timeout returns the configured request deadline as a duration.
func (c IP2LocationConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// BlacklistConfig holds CIDR range blacklist persistence settings.
type BlacklistConfig struct {
	SnapshotPath        string `yaml:"snapshot_path"`
	DebounceSeconds      int   `yaml:"debounce_seconds"`
	HitCounterModulus   int    `yaml:"hit_counter_modulus"`
}

// DebounceInterval returns the debounce window as a duration.
func (c BlacklistConfig) DebounceInterval() time.Duration {
	return time.Duration(c.DebounceSeconds) * time.Second
}

// RedirectCacheConfig holds hot redirect cache tuning.
type RedirectCacheConfig struct {
	TTLSeconds          int `yaml:"ttl_seconds"`
	SweepIntervalSeconds int `yaml:"sweep_interval_seconds"`
}

func (c RedirectCacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

func (c RedirectCacheConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

// WriteBehindConfig holds the batched logger's flush tuning.
type WriteBehindConfig struct {
	BatchSize            int `yaml:"batch_size"`
	FlushIntervalSeconds int `yaml:"flush_interval_seconds"`
	QueueCapacity        int `yaml:"queue_capacity"`
	MaxRequeueRows       int `yaml:"max_requeue_rows"`
}

func (c WriteBehindConfig) FlushInterval() time.Duration {
	return time.Duration(c.FlushIntervalSeconds) * time.Second
}

// SignatureConfig holds the Stage-1 user-agent classifier's signature
// lists. These are explicit fields, not a free-form map, so bad config
// can't silently disable a whole classification category.
type SignatureConfig struct {
	Headless       []string `yaml:"headless"`
	GenericBot     []string `yaml:"generic_bot"`
	SocialPreview  []string `yaml:"social_preview"`
	SearchEngine   []string `yaml:"search_engine"`
	KnownBrowser   []string `yaml:"known_browser"`
	OS             []string `yaml:"os"`
	Device         []string `yaml:"device"`
}

// DispatchConfig holds the dispatcher's own hard-deny list: known
// aggressive scanner/exploit-tool user agents that are refused outright,
// distinct from the Stage-1 signature classifier's cloaking decision.
type DispatchConfig struct {
	CrawlerBlockList []string `yaml:"crawler_block_list"`
}

// Load reads and parses the configuration file, filling in defaults for
// anything left zero-valued.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Store.MaxOpenConns == 0 {
		cfg.Store.MaxOpenConns = 10
	}
	if cfg.Store.MaxIdleConns == 0 {
		cfg.Store.MaxIdleConns = 5
	}
	if cfg.Store.ConnMaxLifetime == 0 {
		cfg.Store.ConnMaxLifetime = 30
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.IP2Location.BaseURL == "" {
		cfg.IP2Location.BaseURL = "https://api.ip2location.io"
	}
	if cfg.IP2Location.TimeoutSeconds == 0 {
		cfg.IP2Location.TimeoutSeconds = 5
	}
	if cfg.IP2Location.MaxRetries == 0 {
		cfg.IP2Location.MaxRetries = 1
	}
	if cfg.Blacklist.SnapshotPath == "" {
		cfg.Blacklist.SnapshotPath = "data/cidr_blacklist.json"
	}
	if cfg.Blacklist.DebounceSeconds == 0 {
		cfg.Blacklist.DebounceSeconds = 2
	}
	if cfg.Blacklist.HitCounterModulus == 0 {
		cfg.Blacklist.HitCounterModulus = 10
	}
	if cfg.RedirectCache.TTLSeconds == 0 {
		cfg.RedirectCache.TTLSeconds = 300
	}
	if cfg.RedirectCache.SweepIntervalSeconds == 0 {
		cfg.RedirectCache.SweepIntervalSeconds = 60
	}
	if cfg.WriteBehind.BatchSize == 0 {
		cfg.WriteBehind.BatchSize = 100
	}
	if cfg.WriteBehind.FlushIntervalSeconds == 0 {
		cfg.WriteBehind.FlushIntervalSeconds = 2
	}
	if cfg.WriteBehind.QueueCapacity == 0 {
		cfg.WriteBehind.QueueCapacity = 10000
	}
	if cfg.WriteBehind.MaxRequeueRows == 0 {
		cfg.WriteBehind.MaxRequeueRows = 10
	}
	if len(cfg.Signatures.Headless) == 0 {
		cfg.Signatures.Headless = []string{"headlesschrome", "phantomjs", "puppeteer", "playwright", "selenium"}
	}
	if len(cfg.Signatures.GenericBot) == 0 {
		cfg.Signatures.GenericBot = []string{"bot", "crawler", "spider", "scraper", "curl", "wget", "python-requests", "go-http-client", "java/", "libwww-perl"}
	}
	if len(cfg.Signatures.SocialPreview) == 0 {
		cfg.Signatures.SocialPreview = []string{"facebookexternalhit", "twitterbot", "slackbot", "discordbot", "telegrambot", "whatsapp", "linkedinbot", "pinterest"}
	}
	if len(cfg.Signatures.SearchEngine) == 0 {
		cfg.Signatures.SearchEngine = []string{"googlebot", "bingbot", "yandexbot", "duckduckbot", "baiduspider", "applebot"}
	}
	if len(cfg.Signatures.KnownBrowser) == 0 {
		cfg.Signatures.KnownBrowser = []string{"mozilla/5.0", "applewebkit", "gecko/", "chrome/", "safari/", "edg/", "firefox/"}
	}
	if len(cfg.Signatures.OS) == 0 {
		cfg.Signatures.OS = []string{"windows nt", "macintosh", "mac os x", "android", "iphone os", "cpu os", "cros", "linux"}
	}
	if len(cfg.Signatures.Device) == 0 {
		cfg.Signatures.Device = []string{"windows", "macintosh", "linux", "android", "iphone", "ipad", "cros", "x11"}
	}
	if len(cfg.Dispatch.CrawlerBlockList) == 0 {
		cfg.Dispatch.CrawlerBlockList = []string{"sqlmap", "nikto", "nmap", "masscan", "nessus", "acunetix", "w3af", "dirbuster", "zgrab", "nuclei"}
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env
// vars, so secrets can live in .env locally and in real env vars on ECS.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Store.DatabaseURL = v
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		cfg.Store.AWSRegion = v
	}
	if os.Getenv("STORE_USE_IAM_AUTH") == "true" {
		cfg.Store.UseIAMAuth = true
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("IP2LOCATION_API_KEY"); v != "" {
		cfg.IP2Location.APIKey = v
	}
	if v := os.Getenv("IP2LOCATION_BASE_URL"); v != "" {
		cfg.IP2Location.BaseURL = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = p
		}
	}

	return cfg, nil
}
