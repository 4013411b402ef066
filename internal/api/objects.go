package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/vsr83/WebGLGlobeTest/internal/cache"
	"github.com/vsr83/WebGLGlobeTest/internal/catalog"
	"github.com/vsr83/WebGLGlobeTest/internal/geometry"
	"github.com/vsr83/WebGLGlobeTest/internal/health"
	"github.com/vsr83/WebGLGlobeTest/internal/httputil"
	"github.com/vsr83/WebGLGlobeTest/internal/passes"
	"github.com/vsr83/WebGLGlobeTest/internal/propagation"
	"github.com/vsr83/WebGLGlobeTest/internal/scene"
	"github.com/vsr83/WebGLGlobeTest/internal/stream"
	"github.com/vsr83/WebGLGlobeTest/internal/transform"
)

// Request budgets.
const (
	defaultTrajectorySamples = 360
	maxPassHours             = 72
	maxObjectHours           = 2400 // objects × hours per pass request
	maxPassesPerObject       = 50
)

// errorStatus maps pipeline errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, scene.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, propagation.ErrUnknownObject):
		return http.StatusNotFound
	case errors.Is(err, propagation.ErrNoCatalog),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeErr(w http.ResponseWriter, logger *slog.Logger, msg string, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		logger.Error(msg, "error", err)
	}
	httputil.WriteError(w, status, err.Error())
}

// frameHandler serves GET /api/v1/frame?t=…&fov=30&distance=8&rot_x=90.
func frameHandler(logger *slog.Logger, builder *scene.Builder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		t, err := parseTime(q, time.Now())
		if err != nil {
			httputil.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		view, err := stream.ParseView(q, geometry.DefaultView())
		if err != nil {
			httputil.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}

		frame, err := builder.Frame(r.Context(), t, view)
		if err != nil {
			writeErr(w, logger, "frame build failed", err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, frame)
	}
}

type objectSummary struct {
	ID            int                 `json:"id"`
	Name          string              `json:"name"`
	Source        string              `json:"source"`
	Epoch         time.Time           `json:"epoch"`
	PeriodSeconds float64             `json:"period_seconds,omitempty"`
	Elements      *scene.ElementsView `json:"elements,omitempty"`
	Error         string              `json:"error,omitempty"`
}

type objectsResponse struct {
	Source     string          `json:"source"`
	LoadedAt   time.Time       `json:"loaded_at"`
	AgeSeconds int             `json:"age_seconds"`
	Count      int             `json:"count"`
	Objects    []objectSummary `json:"objects"`
}

// objectsHandler serves GET /api/v1/objects. Objects whose state cannot
// be turned into elements are listed with an error.
func objectsHandler(logger *slog.Logger, store *catalog.Store, prop *propagation.Propagator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cat := store.Get()
		if cat == nil {
			httputil.WriteError(w, http.StatusServiceUnavailable, propagation.ErrNoCatalog.Error())
			return
		}

		resp := objectsResponse{
			Source:     cat.Source,
			LoadedAt:   cat.LoadedAt,
			AgeSeconds: int(time.Since(cat.LoadedAt).Seconds()),
			Count:      len(cat.Objects),
			Objects:    make([]objectSummary, 0, len(cat.Objects)),
		}
		for _, o := range cat.Objects {
			s := objectSummary{ID: o.ID, Name: o.Name, Source: o.Source, Epoch: o.State.Epoch}
			if el, err := prop.Elements(o.ID); err != nil {
				s.Error = err.Error()
			} else {
				ev := scene.NewElementsView(el)
				s.Elements = &ev
				s.PeriodSeconds = el.Period().Seconds()
			}
			resp.Objects = append(resp.Objects, s)
		}
		httputil.WriteJSON(w, http.StatusOK, resp)
	}
}

// trajectoryHandler serves GET /api/v1/objects/{id}/trajectory?samples=360&t=….
func trajectoryHandler(logger *slog.Logger, builder *scene.Builder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.Atoi(r.PathValue("id"))
		if err != nil {
			httputil.WriteError(w, http.StatusBadRequest, "invalid object id")
			return
		}
		q := r.URL.Query()
		t, err := parseTime(q, time.Now())
		if err != nil {
			httputil.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		samples, err := intParam(q, "samples", defaultTrajectorySamples, 2, scene.MaxTrajectorySamples)
		if err != nil {
			httputil.WriteJSON(w, http.StatusBadRequest, map[string]any{
				"error":       err.Error(),
				"max_samples": scene.MaxTrajectorySamples,
			})
			return
		}

		tr, err := builder.Trajectory(r.Context(), id, t, samples)
		if err != nil {
			writeErr(w, logger, "trajectory failed", err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, tr)
	}
}

type passesResponse struct {
	Observer     transform.Geodetic    `json:"observer"`
	Start        time.Time             `json:"start"`
	HorizonHours float64               `json:"horizon_hours"`
	MinElevation float64               `json:"min_elevation"`
	Objects      []passes.ObjectPasses `json:"objects"`
}

// passesHandler serves GET /api/v1/passes?lat=60&lon=25&alt_km=0&hours=24&min_el=10&ids=25544.
// Without lat/lon the configured observer is used.
func passesHandler(logger *slog.Logger, store *catalog.Store, defaultObs transform.Observer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		cat := store.Get()
		if cat == nil {
			httputil.WriteError(w, http.StatusServiceUnavailable, propagation.ErrNoCatalog.Error())
			return
		}

		start, err := parseTime(q, time.Now())
		if err != nil {
			httputil.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}

		obs := defaultObs
		if q.Has("lat") || q.Has("lon") || q.Has("alt_km") {
			lat, err := floatParam(q, "lat", defaultObs.LatDeg(), -90, 90)
			if err != nil {
				httputil.WriteError(w, http.StatusBadRequest, err.Error())
				return
			}
			lon, err := floatParam(q, "lon", defaultObs.LonDeg(), -180, 180)
			if err != nil {
				httputil.WriteError(w, http.StatusBadRequest, err.Error())
				return
			}
			alt, err := floatParam(q, "alt_km", defaultObs.Alt, -1, 10)
			if err != nil {
				httputil.WriteError(w, http.StatusBadRequest, err.Error())
				return
			}
			obs = transform.NewObserver(lat, lon, alt)
		}

		hours, err := floatParam(q, "hours", 24, 0.1, maxPassHours)
		if err != nil {
			httputil.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		minEl, err := floatParam(q, "min_el", 10, 0, 90)
		if err != nil {
			httputil.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		maxPasses, err := intParam(q, "max_passes", 10, 1, maxPassesPerObject)
		if err != nil {
			httputil.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}

		objects, err := selectObjects(cat, q.Get("ids"))
		if err != nil {
			writeErr(w, logger, "object selection failed", err)
			return
		}
		if cost := float64(len(objects)) * hours; cost > maxObjectHours {
			httputil.WriteJSON(w, http.StatusBadRequest, map[string]any{
				"error":            "request exceeds pass prediction budget, select fewer objects or hours",
				"object_hours":     cost,
				"max_object_hours": maxObjectHours,
			})
			return
		}

		results := passes.Predict(r.Context(), passes.Request{
			Observer:     obs,
			Objects:      objects,
			Start:        start,
			HorizonHours: hours,
			MinElevation: minEl,
			MaxPasses:    maxPasses,
		})
		logger.Debug("passes predicted", "objects", len(objects), "hours", hours)

		httputil.WriteJSON(w, http.StatusOK, passesResponse{
			Observer:     obs.Geodetic,
			Start:        start.UTC(),
			HorizonHours: hours,
			MinElevation: minEl,
			Objects:      results,
		})
	}
}

// selectObjects resolves a comma-separated ID list; empty selects all.
func selectObjects(cat *catalog.Catalog, ids string) ([]catalog.Object, error) {
	if ids == "" {
		return cat.Objects, nil
	}
	var out []catalog.Object
	for _, part := range strings.Split(ids, ",") {
		id, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("%w: ids must be comma-separated integers", scene.ErrInvalidRequest)
		}
		o, ok := cat.Lookup(id)
		if !ok {
			return nil, fmt.Errorf("%w: %d", propagation.ErrUnknownObject, id)
		}
		out = append(out, o)
	}
	return out, nil
}

// cacheStatsHandler serves GET /api/v1/cache/stats.
func cacheStatsHandler(kc *cache.KeyframeCache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, kc.Stats())
	}
}

// readinessChecks requires a loaded catalog and, when caching, a warm cache.
func readinessChecks(deps Deps) []health.Check {
	checks := []health.Check{func() error {
		if deps.Store == nil || deps.Store.Get() == nil {
			return propagation.ErrNoCatalog
		}
		return nil
	}}
	if deps.Cache != nil {
		checks = append(checks, func() error {
			if deps.Cache.Stats().Entries == 0 {
				return errors.New("keyframe cache warming up")
			}
			return nil
		})
	}
	return checks
}
