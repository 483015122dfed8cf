// Package tray displays the status indicator: a system tray icon on desktop
// builds and a log sink everywhere else.
package tray

import (
	"sync"

	"go.uber.org/zap"

	"wifistate-go/internal/controller"
)

// LogSink writes indicator changes to the log. It remembers the record on
// display so the status endpoint and tests can inspect it.
type LogSink struct {
	logger *zap.Logger

	mu      sync.Mutex
	current *controller.Record
	shown   int
	cleared int
}

// NewLogSink creates a log sink.
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger.Named("indicator")}
}

// Show logs rec as the displayed indicator.
func (s *LogSink) Show(rec controller.Record) {
	s.mu.Lock()
	s.current = &rec
	s.shown++
	s.mu.Unlock()

	s.logger.Info("Indicator",
		zap.String("icon", string(rec.Icon)),
		zap.String("title", rec.Title),
		zap.String("body", rec.Body),
		zap.String("extra", rec.Extra),
		zap.Bool("ongoing", rec.Ongoing))
}

// Clear logs the removal of the indicator.
func (s *LogSink) Clear() {
	s.mu.Lock()
	s.current = nil
	s.cleared++
	s.mu.Unlock()

	s.logger.Info("Indicator cleared")
}

// Current returns the displayed record, if any.
func (s *LogSink) Current() (controller.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return controller.Record{}, false
	}
	return *s.current, true
}

// Counts returns how often the indicator was shown and cleared.
func (s *LogSink) Counts() (shown, cleared int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shown, s.cleared
}

// Actions are the commands offered by the tray menu.
type Actions struct {
	// Tap runs the configured tap action.
	Tap func()
	// ToggleWifi flips the radio.
	ToggleWifi func()
	// ReenableWifi power-cycles the radio.
	ReenableWifi func()
	// Quit stops the engine.
	Quit func()
}

func call(fn func()) {
	if fn != nil {
		fn()
	}
}

func tooltip(rec controller.Record) string {
	if rec.Body == "" {
		return rec.Title
	}
	return rec.Title + "\n" + rec.Body
}
