package meter

import (
	"github.com/metermate/metermate/internal/meter/repository"
	"github.com/metermate/metermate/internal/meter/service"
	"go.uber.org/fx"
)

var Module = fx.Module("meter.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
