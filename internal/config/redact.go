package config

// Redacted returns a shallow copy of cfg with sensitive fields replaced by a
// placeholder. Use this when logging the active configuration so credentials
// are never accidentally exposed.
func Redacted(cfg *Config) Config {
	out := *cfg

	out.Brokers = make([]BrokerConfig, len(cfg.Brokers))
	copy(out.Brokers, cfg.Brokers)
	for i := range out.Brokers {
		redact(&out.Brokers[i].Key)
		redact(&out.Brokers[i].Secret)
	}

	redact(&out.Redis.Password)
	redact(&out.Postgres.DSN)
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	if cfg.Notify.Events != nil {
		out.Notify.Events = append([]string{}, cfg.Notify.Events...)
	}
	if cfg.FatalErrors != nil {
		out.FatalErrors = append([]string{}, cfg.FatalErrors...)
	}

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redaction placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
