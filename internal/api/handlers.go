package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/star/satviz/internal/groundstation"
	"github.com/star/satviz/internal/httputil"
	"github.com/star/satviz/internal/passes"
	"github.com/star/satviz/internal/presentation"
	"github.com/star/satviz/internal/propagation"
	"github.com/star/satviz/internal/satellite"
	"github.com/star/satviz/internal/tle"
	"github.com/star/satviz/internal/transform"
)

const (
	maxOrbitSegments = 1000
	maxPassHours     = 72
	maxPassesPerSat  = 50
)

type satelliteView struct {
	ID           tle.CatalogNumber            `json:"id"`
	Name         string                       `json:"name,omitempty"`
	IntlDes      string                       `json:"intl_des,omitempty"`
	State        string                       `json:"state"`
	Category     string                       `json:"category"`
	Epoch        *time.Time                   `json:"epoch,omitempty"`
	Position     *transform.DisplayCoordinate `json:"position,omitempty"`
	Velocity     *[3]float64                  `json:"velocity,omitempty"`
	OrbitVisible bool                         `json:"orbit_visible"`
	OrbitPoints  int                          `json:"orbit_points"`
}

func viewOf(e *satellite.Entity) satelliteView {
	v := satelliteView{
		ID:           e.CatalogNumber(),
		State:        e.State().String(),
		Category:     presentation.CategoryFor(e.CatalogNumber()),
		OrbitVisible: e.OrbitVisible(),
	}
	if rec := e.Record(); rec != nil {
		epoch := rec.Epoch
		v.Name = rec.Name
		v.IntlDes = rec.IntlDes()
		v.Epoch = &epoch
	}
	if _, ok := e.Current(); ok {
		pos := e.Position()
		vel := e.Velocity()
		v.Position = &pos
		v.Velocity = &[3]float64{vel.X, vel.Y, vel.Z}
	}
	points, _ := e.Orbit()
	v.OrbitPoints = len(points)
	return v
}

// pathID parses the {id} path value, writing a 400 on failure.
func pathID(w http.ResponseWriter, r *http.Request) (tle.CatalogNumber, bool) {
	id, err := tle.ParseCatalogNumber(r.PathValue("id"))
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return id, true
}

// selected looks up id in the current snapshot, writing a 404 when absent.
func selected(w http.ResponseWriter, trk Tracker, id tle.CatalogNumber) (*satellite.Entity, bool) {
	e, ok := trk.Snapshot().Get(id)
	if !ok {
		httputil.WriteError(w, http.StatusNotFound, fmt.Sprintf("satellite %s is not selected", id))
		return nil, false
	}
	return e, true
}

// GET /api/v1/satellites
func listSatellitesHandler(trk Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := trk.Snapshot()
		views := make([]satelliteView, 0, snap.Len())
		for _, e := range snap.Entities() {
			views = append(views, viewOf(e))
		}
		resp := map[string]any{
			"generation": snap.Generation,
			"satellites": views,
		}
		if !snap.At.IsZero() {
			resp["at"] = snap.At
		}
		httputil.WriteJSON(w, http.StatusOK, resp)
	}
}

type selectRequest struct {
	IDs []string `json:"ids"`
}

// PUT /api/v1/satellites
func selectHandler(logger *slog.Logger, trk Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req selectRequest
		if err := httputil.DecodeJSON(w, r, &req); err != nil {
			httputil.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		ids := make([]tle.CatalogNumber, 0, len(req.IDs))
		for _, s := range req.IDs {
			id, err := tle.ParseCatalogNumber(s)
			if err != nil {
				httputil.WriteError(w, http.StatusBadRequest, err.Error())
				return
			}
			ids = append(ids, id)
		}

		added, removed, err := trk.Select(ids)
		if errors.Is(err, satellite.ErrSelectionFull) {
			httputil.WriteError(w, http.StatusConflict, err.Error())
			return
		}
		if err != nil {
			logger.Error("select failed", "component", "api", "error", err)
			httputil.WriteError(w, http.StatusInternalServerError, "internal error")
			return
		}
		logger.Info("selection replaced", "component", "api", "added", len(added), "removed", len(removed))
		httputil.WriteJSON(w, http.StatusOK, map[string]any{
			"added":   nonNil(added),
			"removed": nonNil(removed),
		})
	}
}

// GET /api/v1/satellites/{id}
func getSatelliteHandler(trk Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		e, ok := selected(w, trk, id)
		if !ok {
			return
		}
		httputil.WriteJSON(w, http.StatusOK, viewOf(e))
	}
}

// POST /api/v1/satellites/{id}
func addSatelliteHandler(logger *slog.Logger, trk Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		added, err := trk.Add(id)
		if errors.Is(err, satellite.ErrSelectionFull) {
			httputil.WriteError(w, http.StatusConflict, err.Error())
			return
		}
		if err != nil {
			logger.Error("add failed", "component", "api", "id", id, "error", err)
			httputil.WriteError(w, http.StatusInternalServerError, "internal error")
			return
		}
		e, _ := trk.Snapshot().Get(id)
		status := http.StatusOK
		if added {
			status = http.StatusCreated
		}
		if e == nil {
			httputil.WriteJSON(w, status, map[string]any{"id": id})
			return
		}
		httputil.WriteJSON(w, status, viewOf(e))
	}
}

// DELETE /api/v1/satellites/{id}
func removeSatelliteHandler(logger *slog.Logger, trk Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		if !trk.Remove(id) {
			httputil.WriteError(w, http.StatusNotFound, fmt.Sprintf("satellite %s is not selected", id))
			return
		}
		logger.Info("satellite removed", "component", "api", "id", id)
		w.WriteHeader(http.StatusNoContent)
	}
}

// GET /api/v1/satellites/{id}/summary
func summaryHandler(trk Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		e, ok := selected(w, trk, id)
		if !ok {
			return
		}
		sum, err := e.Summary()
		if errors.Is(err, satellite.ErrNotActive) || errors.Is(err, satellite.ErrNoPosition) {
			httputil.WriteError(w, http.StatusConflict, err.Error())
			return
		}
		if err != nil {
			httputil.WriteError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]any{
			"name":      sum.Name,
			"epoch":     sum.Epoch,
			"at":        sum.At,
			"formatted": sum.Format(),
			"values": map[string]float64{
				"mean_motion":        sum.MeanMotion,
				"eccentricity":       sum.Eccentricity,
				"inclination_deg":    sum.InclinationDeg,
				"raan_deg":           sum.RAANDeg,
				"arg_perigee_deg":    sum.ArgPerigeeDeg,
				"semi_major_axis_km": sum.SemiMajorAxisKm,
				"semi_minor_axis_km": sum.SemiMinorAxisKm,
				"apogee_km":          sum.ApogeeKm,
				"perigee_km":         sum.PerigeeKm,
				"period_min":         sum.PeriodMin,
				"speed_km_s":         sum.SpeedKmS,
				"ground_speed_km_s":  sum.GroundSpeedKmS,
				"latitude_deg":       sum.Position.LatDeg,
				"longitude_deg":      sum.Position.LonDeg,
				"height_km":          sum.Position.HeightKm,
			},
		})
	}
}

type orbitResponse struct {
	ID      tle.CatalogNumber             `json:"id"`
	Visible bool                          `json:"visible"`
	At      time.Time                     `json:"at"`
	Points  []transform.DisplayCoordinate `json:"points"`
}

// GET /api/v1/satellites/{id}/orbit
//
// Returns the cached orbit path. With ?fresh=true (or when no path is
// cached) a new path of ?segments=N segments is sampled from the clock's
// current instant without touching the cache.
func orbitHandler(trk Tracker, defaultSegments int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		e, ok := selected(w, trk, id)
		if !ok {
			return
		}

		points, at := e.Orbit()
		fresh, _ := strconv.ParseBool(r.URL.Query().Get("fresh"))
		if !fresh && points != nil {
			httputil.WriteJSON(w, http.StatusOK, orbitResponse{ID: id, Visible: e.OrbitVisible(), At: at, Points: points})
			return
		}

		segments := defaultSegments
		if v := r.URL.Query().Get("segments"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 || n > maxOrbitSegments {
				httputil.WriteError(w, http.StatusBadRequest, fmt.Sprintf("segments must be between 1 and %d", maxOrbitSegments))
				return
			}
			segments = n
		}

		now := trk.Clock().Now()
		points, err := e.SampleOrbit(segments, now)
		switch {
		case errors.Is(err, satellite.ErrNotActive):
			httputil.WriteError(w, http.StatusConflict, err.Error())
			return
		case errors.Is(err, propagation.ErrPropagation):
			httputil.WriteError(w, http.StatusUnprocessableEntity, err.Error())
			return
		case err != nil:
			httputil.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		httputil.WriteJSON(w, http.StatusOK, orbitResponse{ID: id, Visible: e.OrbitVisible(), At: now, Points: points})
	}
}

type orbitVisibilityRequest struct {
	Visible *bool `json:"visible"`
}

// PUT /api/v1/satellites/{id}/orbit
func orbitVisibilityHandler(trk Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		var req orbitVisibilityRequest
		if err := httputil.DecodeJSON(w, r, &req); err != nil {
			httputil.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		if req.Visible == nil {
			httputil.WriteError(w, http.StatusBadRequest, `"visible" is required`)
			return
		}
		if err := trk.SetOrbitVisible(id, *req.Visible); err != nil {
			httputil.WriteError(w, http.StatusNotFound, err.Error())
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]any{"id": id, "visible": *req.Visible})
	}
}

type stationView struct {
	groundstation.Station
	Display transform.DisplayCoordinate `json:"display"`
}

type categoryView struct {
	Category groundstation.Category `json:"category"`
	Color    string                 `json:"color"`
	Stations []stationView          `json:"stations"`
}

// GET /api/v1/groundstations
func groundStationsHandler(table *groundstation.Table, trk Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now := trk.Clock().Now()
		groups := table.ByCategory()
		cats := make([]categoryView, 0, len(groups))
		for _, c := range table.Categories() {
			cv := categoryView{Category: c, Color: c.Color()}
			for _, s := range groups[c] {
				d, err := table.DisplayPosition(s.Name, now)
				if err != nil {
					continue
				}
				cv.Stations = append(cv.Stations, stationView{Station: s, Display: d})
			}
			cats = append(cats, cv)
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]any{
			"epoch":      table.Epoch(),
			"mode":       table.Mode().String(),
			"at":         now,
			"categories": cats,
		})
	}
}

// GET /api/v1/groundstations/{name}/passes
//
// Query parameters: hours (default 24, max 72), min_elevation in degrees
// (default 10), max_passes per satellite (default 10, max 50).
func passesHandler(logger *slog.Logger, table *groundstation.Table, trk Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		station, ok := table.Station(r.PathValue("name"))
		if !ok {
			httputil.WriteError(w, http.StatusNotFound, fmt.Sprintf("%s: %q", groundstation.ErrUnknownStation, r.PathValue("name")))
			return
		}

		q := r.URL.Query()
		hours := 24.0
		if v := q.Get("hours"); v != "" {
			h, err := strconv.ParseFloat(v, 64)
			if err != nil || h <= 0 {
				httputil.WriteError(w, http.StatusBadRequest, "hours must be a positive number")
				return
			}
			if h > maxPassHours {
				httputil.WriteJSON(w, http.StatusBadRequest, map[string]any{
					"error":     "prediction horizon too long",
					"max_hours": maxPassHours,
				})
				return
			}
			hours = h
		}
		minElev := 10.0
		if v := q.Get("min_elevation"); v != "" {
			e, err := strconv.ParseFloat(v, 64)
			if err != nil || e < 0 || e >= 90 {
				httputil.WriteError(w, http.StatusBadRequest, "min_elevation must be in [0, 90)")
				return
			}
			minElev = e
		}
		maxPasses := 10
		if v := q.Get("max_passes"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 || n > maxPassesPerSat {
				httputil.WriteError(w, http.StatusBadRequest, fmt.Sprintf("max_passes must be between 1 and %d", maxPassesPerSat))
				return
			}
			maxPasses = n
		}

		var props []*propagation.SGP4
		for _, e := range trk.Snapshot().Entities() {
			if e.State() == satellite.Active {
				props = append(props, e.Propagator())
			}
		}

		start := trk.Clock().Now()
		began := time.Now()
		results := passes.Predict(r.Context(), passes.Request{
			Observer:        transform.NewObserver(station.Location),
			Propagators:     props,
			Start:           start,
			Horizon:         time.Duration(hours * float64(time.Hour)),
			MinElevationDeg: minElev,
			MaxPasses:       maxPasses,
		})
		logger.Debug("passes predicted",
			"component", "api",
			"station", station.Name,
			"satellites", len(props),
			"duration_ms", time.Since(began).Milliseconds(),
		)

		httputil.WriteJSON(w, http.StatusOK, map[string]any{
			"station":       station.Name,
			"start":         start,
			"horizon_hours": hours,
			"min_elevation": minElev,
			"satellites":    nonNil(results),
		})
	}
}

// GET /api/v1/clock
func clockHandler(trk Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, trk.Clock().State())
	}
}

type clockRequest struct {
	Now    *time.Time `json:"now"`
	Scale  *float64   `json:"scale"`
	Paused *bool      `json:"paused"`
}

// PUT /api/v1/clock
//
// Any subset of now, scale and paused may be given. An invalid scale
// rejects the whole request.
func setClockHandler(logger *slog.Logger, trk Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req clockRequest
		if err := httputil.DecodeJSON(w, r, &req); err != nil {
			httputil.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		c := trk.Clock()
		if req.Scale != nil {
			if err := c.SetScale(*req.Scale); err != nil {
				httputil.WriteError(w, http.StatusBadRequest, err.Error())
				return
			}
		}
		if req.Now != nil {
			c.Set(*req.Now)
		}
		if req.Paused != nil {
			if *req.Paused {
				c.Pause()
			} else {
				c.Resume()
			}
		}
		st := c.State()
		logger.Info("clock updated", "component", "api", "now", st.Now, "scale", st.Scale, "paused", st.Paused)
		httputil.WriteJSON(w, http.StatusOK, st)
	}
}

// GET /api/v1/presentation/{id}
func presentationHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, presentation.For(id))
}

// GET /api/v1/presentation/earth
func earthPresentationHandler(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, presentation.Earth())
}

// GET /api/v1/tle/metadata
func tleMetadataHandler(trk Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ds := trk.Store().Get()
		if ds == nil {
			httputil.WriteError(w, http.StatusNotFound, "no element sets loaded")
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]any{
			"source":      ds.Source,
			"fetched_at":  ds.FetchedAt,
			"age_seconds": trk.Store().AgeSeconds(),
			"count":       len(ds.Records),
			"epoch_range": map[string]time.Time{
				"min": ds.EpochRange.Min,
				"max": ds.EpochRange.Max,
			},
		})
	}
}

// POST /api/v1/tle/refresh
func tleRefreshHandler(logger *slog.Logger, trk Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		trk.RequestRefresh()
		logger.Info("element set refresh requested", "component", "api")
		httputil.WriteJSON(w, http.StatusAccepted, map[string]bool{"queued": true})
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
