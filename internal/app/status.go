package app

import (
	"time"

	"wifistate-go/internal/controller"
	"wifistate-go/internal/radio"
	"wifistate-go/internal/reachability"
)

// StatusDoc is the document served at /status.
type StatusDoc struct {
	Source        string              `json:"source"`
	Prober        string              `json:"prober"`
	StartedAt     time.Time           `json:"started_at"`
	Uptime        string              `json:"uptime"`
	Controller    controller.View     `json:"controller"`
	Monitor       reachability.Status `json:"monitor"`
	Radio         radio.Status        `json:"radio"`
	DroppedEvents uint64              `json:"dropped_events"`
}

// Status returns the current engine state.
func (a *App) Status() interface{} {
	return a.status()
}

func (a *App) status() StatusDoc {
	doc := StatusDoc{
		Source:        a.sourceName,
		Prober:        a.prober.Name(),
		StartedAt:     a.startedAt,
		Controller:    a.controller.View(),
		Monitor:       a.monitor.Snapshot(),
		Radio:         a.radio.Status(),
		DroppedEvents: a.bus.Dropped(),
	}
	if !a.startedAt.IsZero() {
		doc.Uptime = a.clock.Now().Sub(a.startedAt).Truncate(time.Second).String()
	}
	return doc
}
