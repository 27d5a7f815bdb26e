package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	AppEnv string

	GeminiAPIKey string

	ReferenceRoot string
	OutputRoot    string
	CatalogFile   string
	StateFile     string
	ErrorFile     string
	RunLogFile    string

	Model        string
	AspectRatio  string
	MaxRefImages int
	AcceptedExts []string
	UploadPace   time.Duration

	RetryMaxAttempts int
	RetryBaseDelay   time.Duration
	RetryMaxDelay    time.Duration

	NtfyURL      string
	NtfyTopic    string
	NtfyBase     string
	NtfyUsername string
	NtfyPassword string

	BgcleanRoot    string
	BgcleanPrompt  string
	BgcleanWorkers int
}

// Settings is the optional settings.yaml overlay. Only fields operators
// actually tune between runs live here; credentials stay in the environment.
type Settings struct {
	Model          string   `yaml:"model"`
	AspectRatio    string   `yaml:"aspect_ratio"`
	MaxRefImages   int      `yaml:"max_ref_images"`
	AcceptedExts   []string `yaml:"accepted_extensions"`
	BgcleanPrompt  string   `yaml:"bgclean_prompt"`
	BgcleanWorkers int      `yaml:"bgclean_workers"`
}

const defaultBgcleanPrompt = "Return a single 1024x1024 PNG. Replace only the background with pure white (#FFFFFF). " +
	"Remove any grey from the background. Do not in any way alter the product or its appearance, " +
	"including colours, lighting, geometry, texture, reflections, shadows on the product, or any details. " +
	"Keep the product exactly as-is; change the background only."

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getenvSeconds(key string, def float64) time.Duration {
	v := os.Getenv(key)
	if v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return time.Duration(f * float64(time.Second))
		}
	}
	return time.Duration(def * float64(time.Second))
}

// Load builds the config from the process environment. A .env file in the
// working directory is merged in first when present.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppEnv: getenv("APP_ENV", "development"),

		GeminiAPIKey: os.Getenv("GEMINI_API_KEY"),

		ReferenceRoot: getenv("REFERENCE_ROOT", "./master"),
		OutputRoot:    getenv("OUTPUT_ROOT", "./output_images"),
		CatalogFile:   getenv("CATALOG_FILE", "prompts_new.json"),
		StateFile:     getenv("STATE_FILE", "state.json"),
		ErrorFile:     getenv("ERROR_FILE", "error_log.json"),
		RunLogFile:    getenv("RUN_LOG_FILE", "run.log"),

		Model:        getenv("GEMINI_MODEL", "models/gemini-2.5-flash-image"),
		AspectRatio:  getenv("ASPECT_RATIO", "1:1"),
		MaxRefImages: getenvInt("MAX_REF_IMAGES", 6),
		AcceptedExts: []string{".jpg", ".jpeg"},
		UploadPace:   200 * time.Millisecond,

		RetryMaxAttempts: getenvInt("RETRY_MAX_ATTEMPTS", 4),
		RetryBaseDelay:   getenvSeconds("RETRY_BASE_DELAY_S", 2.0),
		RetryMaxDelay:    getenvSeconds("RETRY_MAX_DELAY_S", 20.0),

		NtfyURL:      os.Getenv("NTFY_URL"),
		NtfyTopic:    os.Getenv("NTFY_TOPIC"),
		NtfyBase:     getenv("NTFY_BASE", "https://ntfy.sh"),
		NtfyUsername: os.Getenv("NTFY_USERNAME"),
		NtfyPassword: os.Getenv("NTFY_PASSWORD"),

		BgcleanRoot:    getenv("BGCLEAN_ROOT", "./output_images/_MovedFiles"),
		BgcleanPrompt:  defaultBgcleanPrompt,
		BgcleanWorkers: getenvInt("BGCLEAN_WORKERS", 4),
	}

	if path := getenv("SETTINGS_FILE", "settings.yaml"); path != "" {
		_ = cfg.applySettings(path)
	}
	return cfg
}

func (c *Config) applySettings(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var s Settings
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	if s.Model != "" {
		c.Model = s.Model
	}
	if s.AspectRatio != "" {
		c.AspectRatio = s.AspectRatio
	}
	if s.MaxRefImages > 0 {
		c.MaxRefImages = s.MaxRefImages
	}
	if len(s.AcceptedExts) > 0 {
		c.AcceptedExts = s.AcceptedExts
	}
	if s.BgcleanPrompt != "" {
		c.BgcleanPrompt = s.BgcleanPrompt
	}
	if s.BgcleanWorkers > 0 {
		c.BgcleanWorkers = s.BgcleanWorkers
	}
	return nil
}

// ResolveNtfyURL returns the endpoint to post notifications to, preferring
// an explicit NTFY_URL over NTFY_BASE/NTFY_TOPIC.
func (c Config) ResolveNtfyURL() string {
	if c.NtfyURL != "" {
		return c.NtfyURL
	}
	if c.NtfyTopic != "" {
		return c.NtfyBase + "/" + c.NtfyTopic
	}
	return ""
}

// ValidateForRun checks the invariants the generation run cannot start
// without. Notification settings are optional and not checked here.
func (c Config) ValidateForRun() error {
	if c.GeminiAPIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required")
	}
	if c.RetryMaxAttempts < 1 {
		return fmt.Errorf("RETRY_MAX_ATTEMPTS must be at least 1")
	}
	if c.MaxRefImages < 1 {
		return fmt.Errorf("MAX_REF_IMAGES must be at least 1")
	}
	return nil
}
