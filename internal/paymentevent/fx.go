package paymentevent

import (
	"github.com/smallbiznis/carebill/internal/paymentevent/service"
	"go.uber.org/fx"
)

var Module = fx.Module("paymentevent.dispatcher",
	fx.Provide(service.New),
)
