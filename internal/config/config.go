package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config"`
	Databases   map[string]DatabaseConfig `json:"databases"`
	Redis       RedisConfig               `json:"redis"`
	Widget      WidgetConfig              `json:"widget"`
	Links       LinksConfig               `json:"links"`
}

type BasicConfig struct {
	ServerAddress string `json:"server_address"`
	// Storage selects the key-value backend: sqlite3, mysql or redis.
	Storage              string `json:"storage"`
	VisitorTokenTTL      int    `json:"visitor_token_ttl"` // hours
	IdleTimeout          int    `json:"idle_timeout"`      // minutes
	JanitorInterval      int    `json:"janitor_interval"`  // minutes
	FileBaseDir          string `json:"file_base_dir"`
	UploadEnabled        bool   `json:"upload_enabled"`
	TempFileTTL          int    `json:"temp_file_ttl"`       // minutes
	TempCleanInterval    int    `json:"temp_clean_interval"` // minutes
	SpeechEnabled        bool   `json:"speech_enabled"`
	NotificationsEnabled bool   `json:"notifications_enabled"`
	// Analytics lists sinks to fan out to: "log", "prometheus".
	Analytics []string `json:"analytics"`
	// AllowedOrigins are the site origins allowed to open the widget socket
	// when the page is served from another host.
	AllowedOrigins []string `json:"allowed_origins"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	Params   string `json:"params"`
}

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type WidgetConfig struct {
	CompanyName        string `json:"company_name"`
	MaxMessages        int    `json:"max_messages"`
	GreetingDelayMS    int    `json:"greeting_delay_ms"`
	TypingMinMS        int    `json:"typing_min_ms"`
	TypingJitterMS     int    `json:"typing_jitter_ms"`
	MaxAttachmentBytes int64  `json:"max_attachment_bytes"`
}

type LinksConfig struct {
	WhatsAppNumber   string `json:"whatsapp_number"`
	WhatsAppGreeting string `json:"whatsapp_greeting"`
	SchedulingURL    string `json:"scheduling_url"`
}

// Load reads configuration from the provided path (defaults to config.json).
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if v := strings.TrimSpace(os.Getenv("NESTURECHAT_STORAGE")); v != "" {
		cfg.BasicConfig.Storage = v
	}
	if v := strings.TrimSpace(os.Getenv("NESTURECHAT_ADDR")); v != "" {
		cfg.BasicConfig.ServerAddress = v
	}
	cfg.applyDefaults()

	storage := strings.ToLower(cfg.BasicConfig.Storage)
	if storage != "redis" {
		dbCfg, ok := cfg.Databases[storage]
		if !ok {
			return nil, fmt.Errorf("database config for %s not found", storage)
		}
		if (storage == "sqlite" || storage == "sqlite3") && dbCfg.DSN != "" && dbCfg.DSN != ":memory:" && !filepath.IsAbs(dbCfg.DSN) && !strings.HasPrefix(dbCfg.DSN, "file:") {
			dbCfg.DSN = filepath.Join(filepath.Dir(absPath), dbCfg.DSN)
			cfg.Databases[storage] = dbCfg
		}
	} else if !cfg.Redis.Enabled {
		return nil, fmt.Errorf("redis storage selected but redis is not enabled")
	}

	if cfg.BasicConfig.FileBaseDir != "" && !filepath.IsAbs(cfg.BasicConfig.FileBaseDir) {
		cfg.BasicConfig.FileBaseDir = filepath.Join(filepath.Dir(absPath), cfg.BasicConfig.FileBaseDir)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.BasicConfig.ServerAddress == "" {
		c.BasicConfig.ServerAddress = ":8090"
	}
	if c.BasicConfig.Storage == "" {
		c.BasicConfig.Storage = "sqlite3"
	}
	if c.BasicConfig.VisitorTokenTTL <= 0 {
		c.BasicConfig.VisitorTokenTTL = 24 * 30
	}
	if c.BasicConfig.IdleTimeout <= 0 {
		c.BasicConfig.IdleTimeout = 30
	}
	if c.BasicConfig.JanitorInterval <= 0 {
		c.BasicConfig.JanitorInterval = 5
	}
	if c.BasicConfig.FileBaseDir == "" {
		c.BasicConfig.FileBaseDir = "./data/uploads"
	}
	if c.Widget.CompanyName == "" {
		c.Widget.CompanyName = "Nesture Labs"
	}
	if c.Widget.MaxMessages <= 0 {
		c.Widget.MaxMessages = 100
	}
	if c.Widget.GreetingDelayMS <= 0 {
		c.Widget.GreetingDelayMS = 800
	}
	if c.Widget.TypingMinMS <= 0 {
		c.Widget.TypingMinMS = 600
	}
	if c.Widget.TypingJitterMS < 0 {
		c.Widget.TypingJitterMS = 0
	} else if c.Widget.TypingJitterMS == 0 {
		c.Widget.TypingJitterMS = 900
	}
	if c.Widget.MaxAttachmentBytes <= 0 {
		c.Widget.MaxAttachmentBytes = 5 << 20
	}
	if c.Links.WhatsAppNumber == "" {
		c.Links.WhatsAppNumber = "94779753202"
	}
	if c.Links.WhatsAppGreeting == "" {
		c.Links.WhatsAppGreeting = "Hello Nesture Labs! I found you through your website and I'm interested in your services."
	}
	if c.Links.SchedulingURL == "" {
		c.Links.SchedulingURL = "https://calendly.com/nesturelabs/45min"
	}
}
