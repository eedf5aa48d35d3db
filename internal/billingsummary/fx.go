package billingsummary

import (
	"github.com/smallbiznis/carebill/internal/billingsummary/service"
	"go.uber.org/fx"
)

var Module = fx.Module("billingsummary.service",
	fx.Provide(service.New),
)
