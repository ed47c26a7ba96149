package bootstrap

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/finddoc-chatbot/internal/config"
	"github.com/wolfman30/finddoc-chatbot/internal/notify"
	"github.com/wolfman30/finddoc-chatbot/internal/session"
	"github.com/wolfman30/finddoc-chatbot/pkg/logging"
)

// AWSConfigLoader loads the shared AWS SDK config on first use.
type AWSConfigLoader func(ctx context.Context) (aws.Config, error)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildSessionStore picks the session backend named by SESSION_STORE.
// Asking for redis or dynamodb without the matching dependency is an error
// rather than a silent fallback to memory.
func BuildSessionStore(ctx context.Context, cfg *appconfig.Config, redisClient *redis.Client, loadAWS AWSConfigLoader, logger *logging.Logger) (session.Store, error) {
	if cfg == nil {
		return nil, errors.New("bootstrap: config required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	switch cfg.SessionStore {
	case "", "memory":
		logger.Info("session store: memory")
		return session.NewMemoryStore(), nil
	case "redis":
		if redisClient == nil {
			return nil, errors.New("bootstrap: SESSION_STORE=redis but redis is unavailable")
		}
		logger.Info("session store: redis", "addr", cfg.RedisAddr)
		return session.NewRedisStore(redisClient, nil), nil
	case "dynamodb":
		if loadAWS == nil {
			return nil, errors.New("bootstrap: SESSION_STORE=dynamodb requires AWS config")
		}
		awsCfg, err := loadAWS(ctx)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: load aws config: %w", err)
		}
		logger.Info("session store: dynamodb", "table", cfg.SessionsTable, "region", cfg.AWSRegion)
		return session.NewDynamoStore(dynamodb.NewFromConfig(awsCfg), cfg.SessionsTable, logger), nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown SESSION_STORE %q", cfg.SessionStore)
	}
}

// BuildEmailSender returns the confirmation email transport named by
// EMAIL_PROVIDER. Misconfigured providers degrade to the logging stub.
func BuildEmailSender(ctx context.Context, cfg *appconfig.Config, loadAWS AWSConfigLoader, logger *logging.Logger) notify.EmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg == nil {
		return notify.NewStubEmailSender(logger)
	}

	switch strings.ToLower(strings.TrimSpace(cfg.EmailProvider)) {
	case "sendgrid":
		sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.EmailFromAddress,
			FromName:  cfg.EmailFromName,
		}, logger)
		if sender != nil {
			logger.Info("email provider: sendgrid")
			return sender
		}
		logger.Warn("EMAIL_PROVIDER=sendgrid but SENDGRID_API_KEY is empty; emails will only be logged")
	case "ses":
		if loadAWS != nil {
			awsCfg, err := loadAWS(ctx)
			if err == nil {
				logger.Info("email provider: ses", "region", cfg.AWSRegion)
				return notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
					FromEmail: cfg.EmailFromAddress,
					FromName:  cfg.EmailFromName,
				}, logger)
			}
			logger.Warn("EMAIL_PROVIDER=ses but aws config failed; emails will only be logged", "error", err)
		}
	}
	return notify.NewStubEmailSender(logger)
}
