// Package vault fetches notifier credentials and other secrets from
// HashiCorp Vault, with a local cache fallback when Vault is disabled.
package vault

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/vault/api"

	"etf-reversion-bot/config"
)

// Secrets holds the credentials the bot reads from Vault.
type Secrets struct {
	TelegramBotToken  string `json:"telegram_bot_token"`
	TelegramChatID    string `json:"telegram_chat_id"`
	DiscordWebhookURL string `json:"discord_webhook_url"`
	JWTSecret         string `json:"jwt_secret"`
	DatabasePassword  string `json:"database_password"`
}

// Client wraps the HashiCorp Vault client
type Client struct {
	client *api.Client
	config config.VaultConfig
	mu     sync.RWMutex
	cached *Secrets
}

// NewClient creates a new Vault client. With Vault disabled the client
// only serves locally stored secrets.
func NewClient(cfg config.VaultConfig) (*Client, error) {
	if !cfg.Enabled {
		return &Client{config: cfg}, nil
	}

	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address

	if cfg.TLSEnabled && cfg.CACert != "" {
		tlsConfig := &api.TLSConfig{CACert: cfg.CACert}
		if err := vaultConfig.ConfigureTLS(tlsConfig); err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
	}

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(cfg.Token)

	return &Client{client: client, config: cfg}, nil
}

// GetSecrets reads the secret bundle, serving the cached copy after the
// first successful read.
func (c *Client) GetSecrets(ctx context.Context) (*Secrets, error) {
	c.mu.RLock()
	if c.cached != nil {
		defer c.mu.RUnlock()
		return c.cached, nil
	}
	c.mu.RUnlock()

	if !c.config.Enabled {
		return &Secrets{}, nil
	}

	path := fmt.Sprintf("%s/data/%s", c.config.MountPath, c.config.SecretPath)
	secret, err := c.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read secrets from vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("no secrets at vault path %s", path)
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected secret format at vault path %s", path)
	}

	secrets := &Secrets{
		TelegramBotToken:  stringField(data, "telegram_bot_token"),
		TelegramChatID:    stringField(data, "telegram_chat_id"),
		DiscordWebhookURL: stringField(data, "discord_webhook_url"),
		JWTSecret:         stringField(data, "jwt_secret"),
		DatabasePassword:  stringField(data, "database_password"),
	}

	c.mu.Lock()
	c.cached = secrets
	c.mu.Unlock()
	return secrets, nil
}

// ApplyOverrides fills config fields from Vault where the config left them
// empty. Config-file values win; Vault is the fallback source.
func (c *Client) ApplyOverrides(ctx context.Context, cfg *config.Config) error {
	secrets, err := c.GetSecrets(ctx)
	if err != nil {
		return err
	}

	if cfg.NotificationConfig.Telegram.BotToken == "" {
		cfg.NotificationConfig.Telegram.BotToken = secrets.TelegramBotToken
	}
	if cfg.NotificationConfig.Telegram.ChatID == "" {
		cfg.NotificationConfig.Telegram.ChatID = secrets.TelegramChatID
	}
	if cfg.NotificationConfig.Discord.WebhookURL == "" {
		cfg.NotificationConfig.Discord.WebhookURL = secrets.DiscordWebhookURL
	}
	if cfg.AuthConfig.JWTSecret == "" {
		cfg.AuthConfig.JWTSecret = secrets.JWTSecret
	}
	if cfg.DatabaseConfig.Password == "" {
		cfg.DatabaseConfig.Password = secrets.DatabasePassword
	}
	return nil
}

func stringField(data map[string]interface{}, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}
