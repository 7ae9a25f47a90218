package statistics

import (
	"github.com/metermate/metermate/internal/config"
	statsdomain "github.com/metermate/metermate/internal/statistics/domain"
	"github.com/metermate/metermate/internal/statistics/engine"
	"github.com/metermate/metermate/internal/statistics/publisher"
	"go.uber.org/fx"
)

func provideEngine(cfg config.Config) (*engine.Engine, error) {
	policy, err := statsdomain.ParsePolicy(cfg.NonIncreasingPolicy)
	if err != nil {
		return nil, err
	}
	return engine.New(policy), nil
}

var Module = fx.Module("statistics",
	fx.Provide(provideEngine),
	fx.Provide(publisher.New),
)
