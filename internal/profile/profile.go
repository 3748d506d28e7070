package profile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Profile is configuration to start the main server.
type Profile struct {
	// Generation backend configuration (OpenAI-compatible protocol).
	// All providers (ollama, openai, deepseek, siliconflow) use the same config.
	BackendProvider string // Provider identifier: ollama, openai, deepseek, siliconflow
	BackendAPIKey   string // API key; local providers accept any non-empty placeholder
	BackendBaseURL  string // Base URL (optional, has default per provider)
	TextModel       string // Default text generation model
	ImageModel      string // Default image generation model
	BackendTimeout  int    // Backend request timeout in seconds (default: 120)

	// Conversation configuration
	ContextWindow      int  // Recent messages included per generation (default: 5)
	IncludeCurrentTurn bool // Whether the turn's own user message stays in its context window

	Mode    string
	Addr    string
	Port    int
	Data    string
	Driver  string
	DSN     string
	Version string
}

// Provider default configurations for the generation backend.
// Used when COMPANION_BACKEND_BASE_URL is not explicitly set.
var backendProviderDefaults = map[string]struct {
	BaseURL   string
	TextModel string
}{
	"ollama": {
		BaseURL:   "http://localhost:11434/v1",
		TextModel: "llama3.1",
	},
	"openai": {
		BaseURL:   "https://api.openai.com/v1",
		TextModel: "gpt-4o-mini",
	},
	"deepseek": {
		BaseURL:   "https://api.deepseek.com",
		TextModel: "deepseek-chat",
	},
	"siliconflow": {
		BaseURL:   "https://api.siliconflow.cn/v1",
		TextModel: "Qwen/Qwen2.5-72B-Instruct",
	},
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// getEnvOrDefault returns environment variable value or default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvOrDefaultInt returns environment variable value as int or default value.
func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// FromEnv loads backend and conversation configuration from environment variables.
func (p *Profile) FromEnv() {
	p.BackendProvider = getEnvOrDefault("COMPANION_BACKEND_PROVIDER", "ollama")
	p.BackendAPIKey = getEnvOrDefault("COMPANION_BACKEND_API_KEY", "")
	p.BackendBaseURL = getEnvOrDefault("COMPANION_BACKEND_BASE_URL", "")
	p.TextModel = getEnvOrDefault("COMPANION_TEXT_MODEL", "")
	p.ImageModel = getEnvOrDefault("COMPANION_IMAGE_MODEL", "stable-diffusion")
	p.BackendTimeout = getEnvOrDefaultInt("COMPANION_BACKEND_TIMEOUT_SECONDS", 120)

	p.ContextWindow = getEnvOrDefaultInt("COMPANION_CONTEXT_WINDOW", 5)
	p.IncludeCurrentTurn = getEnvOrDefault("COMPANION_CONTEXT_INCLUDE_CURRENT", "true") == "true"

	if p.BackendProvider != "" {
		if _, ok := backendProviderDefaults[p.BackendProvider]; !ok {
			slog.Warn("Unknown backend provider, using default: ollama", "provider", p.BackendProvider)
			p.BackendProvider = "ollama"
		}
	}
	if defaults, ok := backendProviderDefaults[p.BackendProvider]; ok {
		if p.BackendBaseURL == "" {
			p.BackendBaseURL = defaults.BaseURL
		}
		if p.TextModel == "" {
			p.TextModel = defaults.TextModel
		}
	}
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		relativeDir := filepath.Join(filepath.Dir(os.Args[0]), dataDir)
		absDir, err := filepath.Abs(relativeDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	if p.Mode == "prod" && p.Data == "" {
		p.Data = "/var/opt/companion"
	}

	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		slog.Error("failed to check data dir", slog.String("data", p.Data), slog.String("error", err.Error()))
		return err
	}
	p.Data = dataDir

	if p.Driver == "" {
		p.Driver = "sqlite"
	}
	if p.Driver == "sqlite" && p.DSN == "" {
		dbFile := fmt.Sprintf("companion_%s.db", p.Mode)
		p.DSN = filepath.Join(dataDir, dbFile)
	}

	if p.ContextWindow <= 0 {
		p.ContextWindow = 5
	}
	if p.BackendTimeout <= 0 {
		p.BackendTimeout = 120
	}

	return nil
}
