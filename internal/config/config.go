// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads configuration from config.yaml and environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/bcem/loginflow/internal/models"
)

const (
	// DefaultCodeTimeout applies when no source sets the email code timeout.
	DefaultCodeTimeout = 60 * time.Second
	// DefaultLockTTL bounds how long a crashed attempt holds its account.
	DefaultLockTTL = 10 * time.Minute
)

// codeTimeoutEnv lists the variables consulted for the email code timeout,
// in order. Values are whole seconds.
var codeTimeoutEnv = []string{"TWS_WAIT_EMAIL_CODE", "LOGIN_CODE_TIMEOUT"}

// APIConfig holds the onboarding task API settings.
type APIConfig struct {
	BaseURL     string
	BearerToken string `validate:"required"`
	UserAgent   string
	Timeout     time.Duration
}

// MailConfig holds the confirmation code retrieval settings. Zero values
// take the retriever defaults.
type MailConfig struct {
	Folders       []string
	Sender        string
	Subject       string
	PollInterval  time.Duration
	CodeTimeout   time.Duration
	FolderTimeout time.Duration
	// Domains maps extra email domains to IMAP hosts.
	Domains map[string]string
}

// Config holds all configuration for the login tools.
type Config struct {
	API      APIConfig
	Mail     MailConfig
	Accounts []models.Account `validate:"dive"`

	// Redis is optional; an empty URL disables locking and outcome events.
	RedisURL      string
	OutcomesQueue string
	LockTTL       time.Duration

	// DatabaseURL is optional; empty disables the attempt log.
	DatabaseURL string

	Concurrency int `validate:"min=1"`
}

// rawConfig mirrors the YAML structure for unmarshalling.
type rawConfig struct {
	API struct {
		BaseURL     string `yaml:"base_url"`
		BearerToken string `yaml:"bearer_token"`
		UserAgent   string `yaml:"user_agent"`
		Timeout     string `yaml:"timeout"`
	} `yaml:"api"`
	Mail struct {
		Folders            []string          `yaml:"folders"`
		Sender             string            `yaml:"sender"`
		Subject            string            `yaml:"subject"`
		PollInterval       string            `yaml:"poll_interval"`
		FolderTimeout      string            `yaml:"folder_timeout"`
		CodeTimeoutSeconds int               `yaml:"code_timeout_seconds"`
		Domains            map[string]string `yaml:"domains"`
	} `yaml:"mail"`
	Accounts []models.Account `yaml:"accounts"`
	Redis    struct {
		URL     string `yaml:"url"`
		LockTTL string `yaml:"lock_ttl"`
		Queues  struct {
			Outcomes string `yaml:"outcomes"`
		} `yaml:"queues"`
	} `yaml:"redis"`
	DatabaseURL string `yaml:"database_url"`
	Concurrency int    `yaml:"concurrency"`
}

// Load reads configuration from config.yaml (with env var expansion) and
// environment variables for non-YAML settings.
func Load() (*Config, error) {
	configPath := envOrDefault("CONFIG_PATH", "config.yaml")

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", configPath, err)
	}

	// Expand ${VAR} references in the YAML
	expanded := os.ExpandEnv(string(data))

	var raw rawConfig
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("parse config YAML: %w", err)
	}

	cfg := &Config{
		API: APIConfig{
			BaseURL:     firstNonEmpty(raw.API.BaseURL, os.Getenv("API_BASE_URL")),
			BearerToken: firstNonEmpty(raw.API.BearerToken, os.Getenv("BEARER_TOKEN")),
			UserAgent:   raw.API.UserAgent,
		},
		Mail: MailConfig{
			Folders:     raw.Mail.Folders,
			Sender:      raw.Mail.Sender,
			Subject:     raw.Mail.Subject,
			CodeTimeout: CodeTimeout(raw.Mail.CodeTimeoutSeconds),
			Domains:     map[string]string{},
		},
		RedisURL:      firstNonEmpty(raw.Redis.URL, os.Getenv("REDIS_URL")),
		OutcomesQueue: firstNonEmpty(raw.Redis.Queues.Outcomes, envOrDefault("OUTCOMES_QUEUE", "login_outcomes")),
		DatabaseURL:   firstNonEmpty(raw.DatabaseURL, os.Getenv("DATABASE_URL")),
		Concurrency:   raw.Concurrency,
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = envOrDefaultInt("CONCURRENCY", 4)
	}

	if cfg.API.Timeout, err = parseDuration("api.timeout", raw.API.Timeout, 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.Mail.PollInterval, err = parseDuration("mail.poll_interval", raw.Mail.PollInterval, 0); err != nil {
		return nil, err
	}
	if cfg.Mail.FolderTimeout, err = parseDuration("mail.folder_timeout", raw.Mail.FolderTimeout, cfg.Mail.CodeTimeout); err != nil {
		return nil, err
	}
	if cfg.LockTTL, err = parseDuration("redis.lock_ttl", raw.Redis.LockTTL, DefaultLockTTL); err != nil {
		return nil, err
	}

	for domain, host := range raw.Mail.Domains {
		cfg.Mail.Domains[strings.ToLower(strings.TrimSpace(domain))] = strings.TrimSpace(host)
	}

	for _, acct := range raw.Accounts {
		// Skip entries with empty credentials (commented out in YAML)
		if acct.Identifier == "" && acct.Secret == "" {
			continue
		}
		cfg.Accounts = append(cfg.Accounts, acct)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// CodeTimeout returns the email code timeout: the first env var in
// codeTimeoutEnv holding a positive integer, then yamlSeconds when positive,
// then DefaultCodeTimeout.
func CodeTimeout(yamlSeconds int) time.Duration {
	for _, key := range codeTimeoutEnv {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				return time.Duration(n) * time.Second
			}
		}
	}
	if yamlSeconds > 0 {
		return time.Duration(yamlSeconds) * time.Second
	}
	return DefaultCodeTimeout
}

func parseDuration(field, value string, fallback time.Duration) (time.Duration, error) {
	if strings.TrimSpace(value) == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", field, err)
	}
	return d, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
