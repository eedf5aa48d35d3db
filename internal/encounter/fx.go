package encounter

import (
	"github.com/smallbiznis/carebill/internal/encounter/repository"
	"github.com/smallbiznis/carebill/internal/encounter/service"
	"go.uber.org/fx"
)

var Module = fx.Module("encounter.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
