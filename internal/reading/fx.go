package reading

import (
	"github.com/metermate/metermate/internal/reading/repository"
	"github.com/metermate/metermate/internal/reading/service"
	"go.uber.org/fx"
)

var Module = fx.Module("reading",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
