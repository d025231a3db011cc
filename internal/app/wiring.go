package app

import (
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/sungwon/mailqueue/internal/config"
	"github.com/sungwon/mailqueue/internal/logger"
	"github.com/sungwon/mailqueue/internal/preference"
	"github.com/sungwon/mailqueue/internal/provider"
)

// ProviderConfig converts the provider section of the configuration.
func ProviderConfig(c config.ProviderConfig) provider.ProviderConfig {
	return provider.ProviderConfig{
		Type:     c.Type,
		APIKey:   c.APIKey,
		Endpoint: c.Endpoint,
		Timeout:  c.Timeout,
		Domain:   c.Domain,
		SMTPHost: c.SMTPHost,
		SMTPPort: c.SMTPPort,
		Username: c.Username,
		Password: c.Password,

		Region:          c.Region,
		AccessKeyID:     c.AccessKeyID,
		SecretAccessKey: c.SecretAccessKey,
		SessionToken:    c.SessionToken,

		TenantID:     c.TenantID,
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		UserID:       c.UserID,
	}
}

// preferenceLookup puts the Redis cache in front of store when Redis is
// configured.
func preferenceLookup(store preference.Lookup, client *redis.Client, cfg *config.Config, log zerolog.Logger) preference.Lookup {
	if client == nil {
		return store
	}
	return preference.NewCachedLookup(store, client, cfg.Preferences.CacheTTL, logger.Component(log, "preferences"))
}
