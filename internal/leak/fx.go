package leak

import (
	"github.com/smallbiznis/carebill/internal/leak/repository"
	"github.com/smallbiznis/carebill/internal/leak/service"
	"go.uber.org/fx"
)

var Module = fx.Module("leak.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
