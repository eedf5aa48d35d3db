package payment

import (
	"github.com/smallbiznis/carebill/internal/payment/adapters"
	"github.com/smallbiznis/carebill/internal/payment/repository"
	paymentservice "github.com/smallbiznis/carebill/internal/payment/service"
	"github.com/smallbiznis/carebill/internal/payment/webhook"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(adapters.NewDefaultRegistry),
	fx.Provide(paymentservice.NewService),
	fx.Provide(webhook.NewService),
)
