package platform

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"wifistate-go/internal/netstate"
)

// Scenario is a scripted sequence of platform inputs.
//
//	name: roaming
//	loop: false
//	steps:
//	  - signal: {radio_power: enabled, supplicant: scanning}
//	  - wait: 5s
//	  - screen: "off"
type Scenario struct {
	Name  string `yaml:"name"`
	Loop  bool   `yaml:"loop"`
	Steps []Step `yaml:"steps"`
}

// Step is one scenario action. Exactly one field is set.
type Step struct {
	Signal *netstate.RawSignal `yaml:"signal,omitempty"`
	Screen string              `yaml:"screen,omitempty"`
	Wait   time.Duration       `yaml:"wait,omitempty"`
	Tap    bool                `yaml:"tap,omitempty"`
}

func (s Step) kind() string {
	switch {
	case s.Signal != nil:
		return "signal"
	case s.Screen != "":
		return "screen"
	case s.Wait != 0:
		return "wait"
	case s.Tap:
		return "tap"
	default:
		return ""
	}
}

func (s Step) validate() error {
	set := 0
	for _, b := range []bool{s.Signal != nil, s.Screen != "", s.Wait != 0, s.Tap} {
		if b {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("expected exactly one action, got %d", set)
	}
	if s.Screen != "" && s.Screen != "on" && s.Screen != "off" {
		return fmt.Errorf("screen must be on or off, got %q", s.Screen)
	}
	if s.Wait < 0 {
		return fmt.Errorf("negative wait %s", s.Wait)
	}
	return nil
}

// ParseScenario decodes and validates a YAML scenario.
func ParseScenario(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("failed to parse scenario: %w", err)
	}
	if len(sc.Steps) == 0 {
		return nil, errors.New("scenario has no steps")
	}
	for i, step := range sc.Steps {
		if err := step.validate(); err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
	}
	if sc.Loop {
		waits := false
		for _, step := range sc.Steps {
			waits = waits || step.Wait > 0
		}
		if !waits {
			return nil, errors.New("looping scenario needs at least one wait step")
		}
	}
	return &sc, nil
}

// LoadScenario reads a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario %s: %w", path, err)
	}
	sc, err := ParseScenario(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return sc, nil
}

// ScenarioSink receives scenario inputs.
type ScenarioSink interface {
	HandleSignal(netstate.RawSignal)
	HandleScreen(on bool)
	Tap()
}

// Player replays a Scenario into a sink. Its Radio reflects radio commands
// back into the replayed signal so power cycles can be observed.
type Player struct {
	scenario *Scenario
	clock    clockwork.Clock
	logger   *zap.Logger
	radio    *SimulatedRadio

	mu   sync.Mutex
	sink ScenarioSink
	last netstate.RawSignal
}

// NewPlayer creates a player for sc.
func NewPlayer(sc *Scenario, clk clockwork.Clock, logger *zap.Logger) *Player {
	p := &Player{
		scenario: sc,
		clock:    clk,
		logger:   logger.Named("scenario"),
		last:     netstate.RawSignal{RadioPower: netstate.PowerEnabled},
	}
	p.radio = &SimulatedRadio{power: netstate.PowerEnabled, onChange: p.radioChanged}
	return p
}

// Radio returns the simulated radio bound to this player.
func (p *Player) Radio() *SimulatedRadio {
	return p.radio
}

// Run replays the scenario into sink until it ends or ctx is done.
func (p *Player) Run(ctx context.Context, sink ScenarioSink) error {
	p.mu.Lock()
	p.sink = sink
	p.mu.Unlock()

	p.logger.Info("Replaying scenario",
		zap.String("name", p.scenario.Name),
		zap.Int("steps", len(p.scenario.Steps)),
		zap.Bool("loop", p.scenario.Loop))

	for {
		for i, step := range p.scenario.Steps {
			if err := ctx.Err(); err != nil {
				return err
			}
			p.logger.Debug("Scenario step", zap.Int("index", i+1), zap.String("kind", step.kind()))
			if err := p.play(ctx, sink, step); err != nil {
				return err
			}
		}
		if !p.scenario.Loop {
			p.logger.Info("Scenario finished", zap.String("name", p.scenario.Name))
			return nil
		}
	}
}

func (p *Player) play(ctx context.Context, sink ScenarioSink, step Step) error {
	switch {
	case step.Signal != nil:
		raw := *step.Signal
		p.mu.Lock()
		p.last = raw
		p.mu.Unlock()
		p.radio.observe(raw.RadioPower)
		sink.HandleSignal(raw)
	case step.Screen != "":
		sink.HandleScreen(step.Screen == "on")
	case step.Tap:
		sink.Tap()
	case step.Wait > 0:
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.clock.After(step.Wait):
		}
	}
	return nil
}

// radioChanged re-emits the last signal with the commanded power. A radio
// turned off drops every Wi-Fi detail. Nothing is emitted before Run.
func (p *Player) radioChanged(power netstate.RadioPower) {
	p.mu.Lock()
	raw := p.last
	raw.RadioPower = power
	if power != netstate.PowerEnabled {
		raw.Supplicant = netstate.SupplicantNone
		raw.Link = nil
		raw.Wifi = nil
	}
	p.last = raw
	sink := p.sink
	p.mu.Unlock()

	p.logger.Debug("Simulated radio changed", zap.String("power", string(power)))
	if sink != nil {
		sink.HandleSignal(raw)
	}
}

// SimulatedRadio is an in-memory radio controller.
type SimulatedRadio struct {
	mu       sync.Mutex
	power    netstate.RadioPower
	reject   bool
	onChange func(netstate.RadioPower)
}

// NewSimulatedRadio creates a radio in the given power state.
func NewSimulatedRadio(power netstate.RadioPower) *SimulatedRadio {
	return &SimulatedRadio{power: power}
}

// PowerState returns the simulated power state.
func (r *SimulatedRadio) PowerState(ctx context.Context) (netstate.RadioPower, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.power, nil
}

// SetEnabled switches the simulated radio and notifies the owning player.
func (r *SimulatedRadio) SetEnabled(ctx context.Context, enabled bool) error {
	r.mu.Lock()
	if r.reject {
		r.mu.Unlock()
		return errors.New("radio command rejected")
	}
	power := netstate.PowerDisabled
	if enabled {
		power = netstate.PowerEnabled
	}
	changed := r.power != power
	r.power = power
	onChange := r.onChange
	r.mu.Unlock()

	if changed && onChange != nil {
		onChange(power)
	}
	return nil
}

// SetReject makes later SetEnabled calls fail.
func (r *SimulatedRadio) SetReject(reject bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reject = reject
}

func (r *SimulatedRadio) observe(power netstate.RadioPower) {
	if power == netstate.PowerUnknown {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.power = power
}
