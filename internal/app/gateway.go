package app

import (
	"go.uber.org/zap"

	"cobranca/internal/config"
	"cobranca/internal/gateway"
)

// NewGatewayClient creates the payment gateway client from configuration.
func NewGatewayClient(cfg config.GatewayConfig, logger *zap.Logger) *gateway.AsaasClient {
	if cfg.APIKey == "" {
		logger.Warn("GATEWAY_API_KEY is empty; gateway calls will be rejected")
	}

	return gateway.NewAsaasClient(gateway.Options{
		BaseURL:         cfg.BaseURL,
		APIKey:          cfg.APIKey,
		Timeout:         cfg.Timeout,
		BreakerFailures: cfg.BreakerFailures,
		BreakerCooldown: cfg.BreakerCooldown,
	}, logger)
}
