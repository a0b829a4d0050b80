package push

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/MelvinVerLia/SiLaporRT-sub001/config"
)

// NewProvider builds the provider selected by cfg.Driver. The returned
// closer releases provider resources and is never nil.
func NewProvider(cfg config.Push, log *slog.Logger) (Provider, io.Closer, error) {
	switch cfg.Driver {
	case "webpush":
		return NewWebPushProvider(cfg.WebPush, nil), nopCloser{}, nil
	case "kafka":
		p, err := NewKafkaProvider(cfg.Kafka, log)
		if err != nil {
			return nil, nil, err
		}
		return p, p, nil
	case "asynq":
		p, err := NewAsynqProvider(cfg.Asynq, log)
		if err != nil {
			return nil, nil, err
		}
		return p, p, nil
	case "noop", "":
		return NewNoopProvider(log), nopCloser{}, nil
	}
	return nil, nil, fmt.Errorf("unknown push driver %q", cfg.Driver)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
