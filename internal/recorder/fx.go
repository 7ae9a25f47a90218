package recorder

import (
	"github.com/metermate/metermate/internal/recorder/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("recorder.store",
	fx.Provide(repository.Provide),
)
