// Package config loads and holds all service configuration.
// Settings start from built-in defaults, are overridden by
// docguard-config.json, then by a .env file, then by the process environment.
// Variables already set in the environment win over the .env file.
package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the full service configuration.
type Config struct {
	ServerPort     int    `json:"serverPort"`
	ManagementPort int    `json:"managementPort"`
	BindAddress    string `json:"bindAddress"`
	LogLevel       string `json:"logLevel"`

	GeminiAPIKey     string `json:"geminiApiKey"`
	GeminiModel      string `json:"geminiModel"`
	ModelTimeoutSecs int    `json:"modelTimeoutSecs"`

	MaxUploadMB        int    `json:"maxUploadMB"`
	DesignTemplatesDir string `json:"designTemplatesDir"`

	// VocabularyDB is the bbolt file holding operator-added keywords.
	VocabularyDB    string `json:"vocabularyDB"`
	ManagementToken string `json:"managementToken"`

	// ExtraKeywords are added to the built-in vocabulary at startup.
	ExtraKeywords []string `json:"extraKeywords"`
}

// Load returns config with defaults overridden by docguard-config.json,
// .env and env vars.
func Load() *Config {
	cfg := defaults()
	loadFile(cfg, "docguard-config.json")
	loadDotEnv(".env")
	loadEnv(cfg)
	return cfg
}

// ServerAddr is the listen address of the public API.
func (c *Config) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.BindAddress, c.ServerPort)
}

// ManagementAddr is the listen address of the management API.
func (c *Config) ManagementAddr() string {
	return fmt.Sprintf("%s:%d", c.BindAddress, c.ManagementPort)
}

// ModelTimeout bounds a single model call.
func (c *Config) ModelTimeout() time.Duration {
	return time.Duration(c.ModelTimeoutSecs) * time.Second
}

// MaxUploadBytes bounds a multipart request body.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

func defaults() *Config {
	return &Config{
		ServerPort:         8080,
		ManagementPort:     8081,
		BindAddress:        "127.0.0.1",
		LogLevel:           "info",
		GeminiModel:        "gemini-2.0-flash",
		ModelTimeoutSecs:   120,
		MaxUploadMB:        16,
		DesignTemplatesDir: "model_templates/design",
		VocabularyDB:       "docguard-vocabulary.db",
	}
}

func loadFile(cfg *Config, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return // file is optional
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		log.Printf("[CONFIG] Warning: could not parse %s: %v", path, err)
	} else {
		log.Printf("[CONFIG] Loaded %s", path)
	}
}

// loadDotEnv copies path's variables into the environment without
// overriding variables that are already set.
func loadDotEnv(path string) {
	if _, err := os.Stat(path); err != nil {
		return // file is optional
	}
	if err := godotenv.Load(path); err != nil {
		log.Printf("[CONFIG] Warning: could not parse %s: %v", path, err)
	} else {
		log.Printf("[CONFIG] Loaded %s", path)
	}
}

func loadEnv(cfg *Config) {
	setPositiveInt(&cfg.ServerPort, "SERVER_PORT")
	setPositiveInt(&cfg.ManagementPort, "MANAGEMENT_PORT")
	if v := os.Getenv("BIND_ADDRESS"); v != "" {
		cfg.BindAddress = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.GeminiAPIKey = v
	}
	if v := os.Getenv("GEMINI_MODEL"); v != "" {
		cfg.GeminiModel = v
	}
	setPositiveInt(&cfg.ModelTimeoutSecs, "MODEL_TIMEOUT_SECS")
	setPositiveInt(&cfg.MaxUploadMB, "MAX_UPLOAD_MB")
	if v := os.Getenv("DESIGN_TEMPLATES_DIR"); v != "" {
		cfg.DesignTemplatesDir = v
	}
	if v := os.Getenv("VOCABULARY_DB"); v != "" {
		cfg.VocabularyDB = v
	}
	if v := os.Getenv("MANAGEMENT_TOKEN"); v != "" {
		cfg.ManagementToken = v
	}
}

// setPositiveInt overwrites *dst with the env var when it parses as a
// positive integer; anything else keeps the current value.
func setPositiveInt(dst *int, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		*dst = n
	}
}
