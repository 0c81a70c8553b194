package notifier

import (
	"context"

	"github.com/goran-ethernal/ChainReducer/internal/logger"
	"github.com/goran-ethernal/ChainReducer/pkg/config"
)

// New builds the notifier selected by cfg. The returned close function
// releases its connections.
func New(ctx context.Context, cfg *config.NotifierConfig, log *logger.Logger) (Notifier, func() error, error) {
	noClose := func() error { return nil }

	if cfg == nil {
		return NewLogNotifier(log), noClose, nil
	}

	switch cfg.Type {
	case config.NotifierNATS, config.NotifierBoth:
		nn, err := ConnectNATS(ctx, cfg, log)
		if err != nil {
			return nil, noClose, err
		}
		if cfg.Type == config.NotifierNATS {
			return Fanout{nn}, nn.Close, nil
		}
		return Fanout{NewLogNotifier(log), nn}, nn.Close, nil
	default:
		return Fanout{NewLogNotifier(log)}, noClose, nil
	}
}
