// Package config loads and validates threatbusd's process configuration
// from environment variables, with an optional HashiCorp Vault overlay for
// secrets. Validation never panics: Load always returns every missing or
// invalid key it found, not just the first, so an operator can fix a
// misconfiguration in one pass instead of iterating.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// AppConfig configures the reference Zeek-style app adapter.
type AppConfig struct {
	Host            string
	Port            int
	ModuleNamespace string
}

// BackboneConfig configures the durable AMQP backbone.
type BackboneConfig struct {
	Host     string
	Port     int
	Username string
	Password string
}

// Config is the fully resolved process configuration for cmd/threatbusd.
type Config struct {
	App             AppConfig
	Backbone        BackboneConfig
	InboxCapacity   int
	DispatchBacklog int
	MetricsAddr     string
	VaultAddr       string
	VaultToken      string
	VaultSecretPath string
}

// InvalidError reports every missing or invalid configuration key found
// during a single Load call, per the "no exceptions as control flow in
// config validation" design note.
type InvalidError struct {
	Keys []string
}

func (e *InvalidError) Error() string {
	msg := "config: invalid or missing keys:"
	for _, k := range e.Keys {
		msg += " " + k
	}
	return msg
}

// Load reads Config from environment variables, returning an *InvalidError
// listing every problem found if any required key is missing or malformed.
func Load() (Config, error) {
	var problems []string

	cfg := Config{
		App: AppConfig{
			Host:            getEnv("THREATBUS_APP_HOST", "0.0.0.0"),
			ModuleNamespace: getEnv("THREATBUS_APP_NAMESPACE", "Tb"),
		},
		Backbone: BackboneConfig{
			Host:     getEnv("THREATBUS_BACKBONE_HOST", "localhost"),
			Username: os.Getenv("THREATBUS_BACKBONE_USER"),
			Password: os.Getenv("THREATBUS_BACKBONE_PASSWORD"),
		},
		MetricsAddr:     getEnv("THREATBUS_METRICS_ADDR", ":9090"),
		VaultAddr:       os.Getenv("VAULT_ADDR"),
		VaultToken:      os.Getenv("VAULT_TOKEN"),
		VaultSecretPath: getEnv("THREATBUS_VAULT_SECRET_PATH", "secret/data/threatbus"),
	}

	appPort, err := intEnv("THREATBUS_APP_PORT", 47761)
	if err != nil {
		problems = append(problems, "THREATBUS_APP_PORT: "+err.Error())
	}
	cfg.App.Port = appPort

	backbonePort, err := intEnv("THREATBUS_BACKBONE_PORT", 5672)
	if err != nil {
		problems = append(problems, "THREATBUS_BACKBONE_PORT: "+err.Error())
	}
	cfg.Backbone.Port = backbonePort

	inboxCapacity, err := intEnv("THREATBUS_INBOX_CAPACITY", 1024)
	if err != nil {
		problems = append(problems, "THREATBUS_INBOX_CAPACITY: "+err.Error())
	}
	cfg.InboxCapacity = inboxCapacity

	backlog, err := intEnv("THREATBUS_DISPATCH_BACKLOG", 4096)
	if err != nil {
		problems = append(problems, "THREATBUS_DISPATCH_BACKLOG: "+err.Error())
	}
	cfg.DispatchBacklog = backlog

	if cfg.App.ModuleNamespace == "" {
		problems = append(problems, "THREATBUS_APP_NAMESPACE: must not be empty")
	}
	if cfg.VaultAddr != "" && cfg.VaultToken == "" {
		problems = append(problems, "VAULT_TOKEN: required when VAULT_ADDR is set")
	}

	if len(problems) > 0 {
		return Config{}, &InvalidError{Keys: problems}
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func intEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("not an integer: %q", v)
	}
	return n, nil
}
