package config

import (
	"os"
	"strconv"
)

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv(cfg *Config) {
	if target := os.Getenv("TARGET_URL"); target != "" {
		cfg.Target = target
	}

	if username := os.Getenv("SLCM_USERNAME"); username != "" {
		cfg.Credentials.Username = username
	}
	if password := os.Getenv("SLCM_PASSWORD"); password != "" {
		cfg.Credentials.Password = password
	}

	// Headless unless explicitly disabled
	if headless, ok := os.LookupEnv("IS_HEADLESS"); ok {
		cfg.Browser.Headless = headless != "false"
	}

	if bin := os.Getenv("CHROME_BIN"); bin != "" {
		cfg.Browser.ExecPath = bin
	}

	if addr := os.Getenv("SSOLOAD_METRICS_ADDR"); addr != "" {
		cfg.MetricsAddr = addr
	}

	if logLevel := os.Getenv("SSOLOAD_LOG_LEVEL"); logLevel != "" {
		cfg.Log.Level = logLevel
	}

	if maxVUs := os.Getenv("SSOLOAD_MAX_VUS"); maxVUs != "" {
		if n, err := strconv.Atoi(maxVUs); err == nil {
			cfg.MaxVUs = n
		}
	}
}

// GetEnvOrDefault returns environment variable or default value
func GetEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
