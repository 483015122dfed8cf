package platform

import (
	"context"
	"reflect"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"wifistate-go/internal/netstate"
)

// SignalReader samples the current raw signal.
type SignalReader interface {
	ReadSignal(ctx context.Context) (netstate.RawSignal, error)
}

// Poller samples a SignalReader periodically and forwards changed signals.
type Poller struct {
	reader   SignalReader
	interval time.Duration
	clock    clockwork.Clock
	logger   *zap.Logger

	last     *netstate.RawSignal
	failures int
}

// NewPoller creates a poller sampling reader every interval.
func NewPoller(reader SignalReader, interval time.Duration, clk clockwork.Clock, logger *zap.Logger) *Poller {
	return &Poller{
		reader:   reader,
		interval: interval,
		clock:    clk,
		logger:   logger.Named("poller"),
	}
}

// Run polls until ctx is done. The first sample is taken immediately; later
// samples are forwarded to emit only when they differ from the previous one.
func (p *Poller) Run(ctx context.Context, emit func(netstate.RawSignal)) error {
	p.logger.Info("Signal poller started", zap.Duration("interval", p.interval))
	defer p.logger.Info("Signal poller stopped")

	for {
		p.poll(ctx, emit)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.clock.After(p.interval):
		}
	}
}

func (p *Poller) poll(ctx context.Context, emit func(netstate.RawSignal)) {
	raw, err := p.reader.ReadSignal(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		p.failures++
		if p.failures == 1 {
			p.logger.Warn("Failed to read signal", zap.Error(err))
		} else {
			p.logger.Debug("Failed to read signal",
				zap.Int("consecutive_failures", p.failures),
				zap.Error(err))
		}
		return
	}
	if p.failures > 0 {
		p.logger.Info("Signal reads recovered", zap.Int("after_failures", p.failures))
		p.failures = 0
	}

	if p.last != nil && reflect.DeepEqual(*p.last, raw) {
		return
	}
	p.last = &raw
	emit(raw)
}
