package tracker

import (
	"log/slog"

	"github.com/star/satviz/internal/tle"
)

// Notifier receives the user-visible events of the tracker. Implementations
// must not block; they are called from the tick and fetch loops.
type Notifier interface {
	// SatelliteEvicted reports a satellite removed after a propagation failure.
	SatelliteEvicted(id tle.CatalogNumber, err error)
	// SatelliteRejected reports a requested satellite for which no usable
	// element set was found.
	SatelliteRejected(id tle.CatalogNumber, reason string)
}

// Notifiers fans events out to several notifiers in order.
type Notifiers []Notifier

func (ns Notifiers) SatelliteEvicted(id tle.CatalogNumber, err error) {
	for _, n := range ns {
		n.SatelliteEvicted(id, err)
	}
}

func (ns Notifiers) SatelliteRejected(id tle.CatalogNumber, reason string) {
	for _, n := range ns {
		n.SatelliteRejected(id, reason)
	}
}

// LogNotifier writes events to a logger.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) SatelliteEvicted(id tle.CatalogNumber, err error) {
	n.Logger.Warn("satellite removed", "catalog_number", id, "error", err)
}

func (n LogNotifier) SatelliteRejected(id tle.CatalogNumber, reason string) {
	n.Logger.Warn("could not add satellite", "catalog_number", id, "reason", reason)
}
