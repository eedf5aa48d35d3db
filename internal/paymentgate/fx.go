package paymentgate

import (
	"github.com/smallbiznis/carebill/internal/paymentgate/service"
	"go.uber.org/fx"
)

var Module = fx.Module("paymentgate.service",
	fx.Provide(service.New),
)
