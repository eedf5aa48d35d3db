package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/smallbiznis/carebill/internal/config"
	"github.com/smallbiznis/carebill/internal/payment/adapters"
	paymentdomain "github.com/smallbiznis/carebill/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log        *zap.Logger
	PaymentSvc paymentdomain.Service
	Adapters   *adapters.Registry
	Cfg        config.Config
}

type Service struct {
	log        *zap.Logger
	paymentSvc paymentdomain.Service
	adapters   *adapters.Registry
	configs    map[string]paymentdomain.AdapterConfig
}

func NewService(p Params) paymentdomain.WebhookService {
	return &Service{
		log:        p.Log.Named("payment.webhook"),
		paymentSvc: p.PaymentSvc,
		adapters:   p.Adapters,
		configs:    AdapterConfigs(p.Cfg.Gateways),
	}
}

// AdapterConfigs maps configured gateway secrets to adapter configs.
func AdapterConfigs(cfg config.GatewayConfig) map[string]paymentdomain.AdapterConfig {
	out := map[string]paymentdomain.AdapterConfig{}
	if secret := strings.TrimSpace(cfg.PaystackSecretKey); secret != "" {
		out["paystack"] = paymentdomain.AdapterConfig{
			Provider: "paystack",
			Config:   map[string]any{"secret_key": secret},
		}
	}
	if hash := strings.TrimSpace(cfg.FlutterwaveSecretHash); hash != "" {
		out["flutterwave"] = paymentdomain.AdapterConfig{
			Provider: "flutterwave",
			Config:   map[string]any{"secret_hash": hash},
		}
	}
	return out
}

// IngestWebhook verifies a gateway callback and hands the parsed event to
// the payment service. Ignored and already processed events return nil so
// the gateway stops redelivering.
func (s *Service) IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return paymentdomain.ErrInvalidProvider
	}
	if s.adapters == nil || !s.adapters.ProviderExists(provider) {
		return paymentdomain.ErrProviderNotFound
	}
	cfg, ok := s.configs[provider]
	if !ok {
		return paymentdomain.ErrProviderNotFound
	}
	if !json.Valid(payload) {
		return paymentdomain.ErrInvalidPayload
	}

	adapter, err := s.adapters.NewAdapter(provider, cfg)
	if err != nil {
		return err
	}
	if err := adapter.Verify(ctx, payload, headers); err != nil {
		s.log.Warn("payment webhook rejected",
			zap.String("provider", provider),
			zap.Error(err),
		)
		return err
	}

	event, err := adapter.Parse(ctx, payload)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrEventIgnored) {
			return nil
		}
		return err
	}
	event.Provider = provider
	if event.RawPayload == nil {
		event.RawPayload = payload
	}

	err = s.paymentSvc.ProcessEvent(ctx, event, payload)
	if errors.Is(err, paymentdomain.ErrEventAlreadyProcessed) {
		s.log.Debug("payment webhook already processed",
			zap.String("provider", provider),
			zap.String("provider_event_id", event.ProviderEventID),
		)
		return nil
	}
	return err
}
