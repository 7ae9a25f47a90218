package history

import (
	"github.com/metermate/metermate/internal/history/service"
	"go.uber.org/fx"
)

var Module = fx.Module("history",
	fx.Provide(service.New),
)
