package config

import (
	"fmt"

	"github.com/hashicorp/vault/api"
)

// ApplyVaultOverlay overlays AMQP credentials read from Vault onto cfg,
// when cfg.VaultAddr is set. It is a no-op otherwise, so a deployment
// without Vault falls back to the plain environment variables Load
// already populated.
func ApplyVaultOverlay(cfg *Config) error {
	if cfg.VaultAddr == "" {
		return nil
	}

	vaultCfg := api.DefaultConfig()
	vaultCfg.Address = cfg.VaultAddr
	client, err := api.NewClient(vaultCfg)
	if err != nil {
		return fmt.Errorf("vault client initialization failed: %w", err)
	}
	client.SetToken(cfg.VaultToken)

	secret, err := client.Logical().Read(cfg.VaultSecretPath)
	if err != nil {
		return fmt.Errorf("failed to read secret at %s: %w", cfg.VaultSecretPath, err)
	}
	if secret == nil || secret.Data == nil {
		return fmt.Errorf("no data found at %s", cfg.VaultSecretPath)
	}
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return fmt.Errorf("unexpected data format at %s", cfg.VaultSecretPath)
	}

	if user, ok := data["backbone_username"].(string); ok && user != "" {
		cfg.Backbone.Username = user
	}
	if pass, ok := data["backbone_password"].(string); ok && pass != "" {
		cfg.Backbone.Password = pass
	}
	return nil
}
