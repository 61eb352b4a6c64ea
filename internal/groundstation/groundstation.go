// Package groundstation holds the fixed table of GPS control-segment sites
// shown alongside the satellites.
package groundstation

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/star/satviz/internal/transform"
)

// SiteHeightKm is the height above the ellipsoid used for every site.
const SiteHeightKm = 0.8

// ErrUnknownStation is returned for a name not in the table.
var ErrUnknownStation = errors.New("unknown ground station")

// Category groups stations by their role in the control segment.
type Category string

const (
	MasterControl          Category = "MCS"
	AlternateMasterControl Category = "Alternate MCS"
	GroundAntenna          Category = "Ground Antenna"
	MonitorStation         Category = "AFMS"
	AFSCN                  Category = "AFSCN"
	NGA                    Category = "NGA"
)

var categoryColors = map[Category]string{
	MasterControl:          "red",
	AlternateMasterControl: "gold",
	GroundAntenna:          "green",
	MonitorStation:         "blue",
	AFSCN:                  "yellow",
	NGA:                    "purple",
}

// Color returns the marker colour for the category.
func (c Category) Color() string { return categoryColors[c] }

// Mode selects how station ECI positions are computed.
type Mode int

const (
	// ModeStatic computes each station's ECI position once at the table
	// epoch and keeps it, so stations stay fixed relative to the stars.
	ModeStatic Mode = iota
	// ModeRotating recomputes ECI positions for every instant so stations
	// turn with the Earth.
	ModeRotating
)

// ParseMode accepts "static" or "rotating".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "static", "":
		return ModeStatic, nil
	case "rotating":
		return ModeRotating, nil
	}
	return ModeStatic, fmt.Errorf("unknown ground station mode %q", s)
}

func (m Mode) String() string {
	if m == ModeRotating {
		return "rotating"
	}
	return "static"
}

// Station is one ground site.
type Station struct {
	Name     string             `json:"name"`
	Category Category           `json:"category"`
	Color    string             `json:"color"`
	Location transform.Geodetic `json:"location"`
	// ECI is the position at the table epoch.
	ECI transform.Vector `json:"eci"`
}

type site struct {
	name     string
	category Category
	lat, lon float64
}

var sites = []site{
	{"schriever", MasterControl, 38.800487, -104.522903},
	{"vandenberg", AlternateMasterControl, 34.751841, -120.520696},
	{"cape", GroundAntenna, 28.491770, -80.578600},
	{"ascension", MonitorStation, -7.943064, -14.372331},
	{"diego", MonitorStation, -7.315041, 72.444928},
	{"kwajalein", MonitorStation, 8.720267, 167.729290},
	{"hawaii", MonitorStation, 20.491747, -157.294502},
	{"greenland", AFSCN, 76.515851, -68.739511},
	{"hampshire", AFSCN, 43.845083, -71.669399},
	{"britain", NGA, 51.901636, -1.440593},
	{"guam", AFSCN, 13.419102, 144.741369},
	{"alaska", AFSCN, 61.777863, -146.905346},
	{"washington", NGA, 38.921486, -77.066804},
	{"ecuador", NGA, -0.975709, -78.587049},
	{"uruguay", NGA, -33.352731, -56.024181},
	{"africa", NGA, -19.392172, 23.563274},
	{"bahrain", NGA, 26.015521, 50.537233},
	{"korea", NGA, 37.129097, 127.773009},
	{"australia", NGA, -33.805079, 138.480160},
	{"zealand", NGA, -41.957162, 173.842508},
}

// Table is the immutable set of stations. It is safe for concurrent use.
type Table struct {
	epoch    time.Time
	mode     Mode
	stations []Station
	byName   map[string]int
}

// NewTable builds the station table with ECI positions at epoch.
func NewTable(epoch time.Time, mode Mode) *Table {
	gmst := transform.GMST(epoch)
	t := &Table{
		epoch:    epoch,
		mode:     mode,
		stations: make([]Station, len(sites)),
		byName:   make(map[string]int, len(sites)),
	}
	for i, s := range sites {
		loc := transform.Geodetic{LatDeg: s.lat, LonDeg: s.lon, HeightKm: SiteHeightKm}
		t.stations[i] = Station{
			Name:     s.name,
			Category: s.category,
			Color:    s.category.Color(),
			Location: loc,
			ECI:      transform.GeodeticToECI(loc, gmst),
		}
		t.byName[s.name] = i
	}
	return t
}

// Epoch returns the instant the stored ECI positions are for.
func (t *Table) Epoch() time.Time { return t.epoch }

// Mode returns the ECI policy.
func (t *Table) Mode() Mode { return t.mode }

// Stations returns every station in table order.
func (t *Table) Stations() []Station {
	return append([]Station(nil), t.stations...)
}

// Station looks up a station by name.
func (t *Table) Station(name string) (Station, bool) {
	i, ok := t.byName[strings.ToLower(name)]
	if !ok {
		return Station{}, false
	}
	return t.stations[i], true
}

// ByCategory groups stations by category, each group in table order.
func (t *Table) ByCategory() map[Category][]Station {
	out := make(map[Category][]Station)
	for _, s := range t.stations {
		out[s.Category] = append(out[s.Category], s)
	}
	return out
}

// Categories returns the categories present in the table, sorted.
func (t *Table) Categories() []Category {
	seen := make(map[Category]bool)
	var cats []Category
	for _, s := range t.stations {
		if !seen[s.Category] {
			seen[s.Category] = true
			cats = append(cats, s.Category)
		}
	}
	sort.Slice(cats, func(i, j int) bool { return cats[i] < cats[j] })
	return cats
}

// Position returns the ECI position of the named station at at, following
// the table's mode.
func (t *Table) Position(name string, at time.Time) (transform.Vector, error) {
	s, ok := t.Station(name)
	if !ok {
		return transform.Vector{}, fmt.Errorf("%w: %q", ErrUnknownStation, name)
	}
	return t.position(s, at), nil
}

func (t *Table) position(s Station, at time.Time) transform.Vector {
	if t.mode == ModeStatic {
		return s.ECI
	}
	return transform.GeodeticToECI(s.Location, transform.GMST(at))
}

// DisplayPosition returns the rendering-frame position of the named station.
func (t *Table) DisplayPosition(name string, at time.Time) (transform.DisplayCoordinate, error) {
	r, err := t.Position(name, at)
	if err != nil {
		return transform.DisplayCoordinate{}, err
	}
	return transform.ECIToDisplay(r), nil
}

// LookAngles returns the azimuth, elevation and range from the named station
// to a satellite at ECI position sat. The geometry always uses the true
// Earth orientation at at, whatever the table mode.
func (t *Table) LookAngles(name string, sat transform.Vector, at time.Time) (transform.LookAngles, error) {
	s, ok := t.Station(name)
	if !ok {
		return transform.LookAngles{}, fmt.Errorf("%w: %q", ErrUnknownStation, name)
	}
	return transform.NewObserver(s.Location).LookAtECI(sat, transform.GMST(at)), nil
}
