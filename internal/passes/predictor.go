// Package passes predicts when tracked objects rise above a ground
// observer's horizon.
package passes

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/vsr83/WebGLGlobeTest/internal/catalog"
	"github.com/vsr83/WebGLGlobeTest/internal/ephemeris"
	"github.com/vsr83/WebGLGlobeTest/internal/illumination"
	"github.com/vsr83/WebGLGlobeTest/internal/metrics"
	"github.com/vsr83/WebGLGlobeTest/internal/orbit"
	"github.com/vsr83/WebGLGlobeTest/internal/propagation"
	"github.com/vsr83/WebGLGlobeTest/internal/timescale"
	"github.com/vsr83/WebGLGlobeTest/internal/transform"
)

// GroundTrackPoint is a sub-object position at a specific time during a pass.
type GroundTrackPoint struct {
	Time      time.Time `json:"time"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Altitude  float64   `json:"altitude_km"`
	Elevation float64   `json:"elevation"` // degrees above observer's horizon (0-90)
}

// PassEvent describes a single pass over an observer location.
type PassEvent struct {
	StartTime        time.Time          `json:"start_time"`
	MaxElevationTime time.Time          `json:"max_elevation_time"`
	EndTime          time.Time          `json:"end_time"`
	DurationSeconds  float64            `json:"duration_seconds"`
	MaxElevation     float64            `json:"max_elevation"`
	AzimuthAtMax     float64            `json:"azimuth_at_max"`
	StartAzimuth     float64            `json:"start_azimuth"`
	EndAzimuth       float64            `json:"end_azimuth"`
	GroundTrack      []GroundTrackPoint `json:"ground_track"`

	// ObserverBand is the illumination at the observer at culmination.
	ObserverBand illumination.Band `json:"observer_band"`
	// Sunlit reports whether the object is outside the Earth's shadow at
	// culmination.
	Sunlit bool `json:"sunlit"`
	// Visible is set when the object is sunlit against a sky at least as
	// dark as nautical twilight.
	Visible bool `json:"visible"`
}

// ObjectPasses holds the predicted passes for one object.
type ObjectPasses struct {
	ID     int         `json:"id"`
	Name   string      `json:"name"`
	Passes []PassEvent `json:"passes"`
	Error  string      `json:"error,omitempty"`
}

// Request holds the parameters for a pass prediction request.
type Request struct {
	Observer     transform.Observer
	Objects      []catalog.Object
	Start        time.Time
	HorizonHours float64
	MinElevation float64 // degrees
	MaxPasses    int
}

const (
	coarseStepSec      = 30 // seconds between coarse scan steps
	fineStepSec        = 1  // seconds between fine scan steps
	groundTrackStepSec = 10 // seconds between ground track samples
	minPassDur         = 10 * time.Second
)

// Predict computes passes for every object in the request.
// Each object is processed in its own goroutine, bounded by a semaphore.
func Predict(ctx context.Context, req Request) []ObjectPasses {
	results := make([]ObjectPasses, len(req.Objects))
	sem := make(chan struct{}, runtime.NumCPU())
	var wg sync.WaitGroup

	for i, obj := range req.Objects {
		wg.Add(1)
		go func(idx int, o catalog.Object) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[idx] = ObjectPasses{ID: o.ID, Name: o.Name, Error: "cancelled"}
				return
			}

			passes, err := predictObject(ctx, req, o)
			if err != nil {
				results[idx] = ObjectPasses{ID: o.ID, Name: o.Name, Error: err.Error()}
				return
			}
			results[idx] = ObjectPasses{ID: o.ID, Name: o.Name, Passes: passes}
		}(i, obj)
	}

	wg.Wait()

	var total int
	for _, r := range results {
		total += len(r.Passes)
	}
	metrics.AddPassesPredicted(total)
	return results
}

// predictObject finds all passes for a single object.
func predictObject(ctx context.Context, req Request, obj catalog.Object) ([]PassEvent, error) {
	prop, err := propagation.NewKeplerPropagator(obj)
	if err != nil {
		return nil, fmt.Errorf("orbit init: %w", err)
	}

	end := req.Start.Add(time.Duration(req.HorizonHours * float64(time.Hour)))
	var passes []PassEvent

	// Coarse scan: step through the time range looking for elevation > 0.
	t := req.Start
	for t.Before(end) && len(passes) < req.MaxPasses {
		if ctx.Err() != nil {
			return passes, nil
		}

		s, err := sampleAt(prop, req.Observer, t)
		if err != nil {
			t = t.Add(coarseStepSec * time.Second)
			continue
		}

		if s.look.ElevationDeg > 0 {
			pass, windowEnd := refinePass(ctx, prop, req.Observer, t, req.Start, end, req.MinElevation)
			if pass != nil && pass.EndTime.Sub(pass.StartTime) >= minPassDur {
				passes = append(passes, *pass)
			}
			t = windowEnd.Add(coarseStepSec * time.Second)
		} else {
			t = t.Add(coarseStepSec * time.Second)
		}
	}

	return passes, nil
}

// refinePass does a fine-grained scan around a coarse-detected above-horizon region.
// It backs up to find the actual rise, then scans forward to find set.
// Returns the pass event and the time the window ends.
func refinePass(ctx context.Context, prop *propagation.KeplerPropagator, obs transform.Observer, coarseHit, windowStart, windowEnd time.Time, minElev float64) (*PassEvent, time.Time) {
	searchStart := coarseHit.Add(-coarseStepSec * time.Second)
	if searchStart.Before(windowStart) {
		searchStart = windowStart
	}

	var (
		riseTime    time.Time
		setTime     time.Time
		riseAz      float64
		setAz       float64
		maxEl       float64
		maxElTime   time.Time
		maxElAz     float64
		maxElState  orbit.StateVector
		wasAbove    bool
		foundRise   bool
		groundTrack []GroundTrackPoint
	)

	t := searchStart
	for t.Before(windowEnd) {
		if ctx.Err() != nil {
			break
		}

		s, err := sampleAt(prop, obs, t)
		if err != nil {
			t = t.Add(fineStepSec * time.Second)
			continue
		}
		el := s.look.ElevationDeg
		above := el >= minElev

		if above && !wasAbove {
			riseTime = t
			riseAz = s.look.AzimuthDeg
			foundRise = true
			maxEl = el
			maxElTime = t
			maxElAz = s.look.AzimuthDeg
			maxElState = s.eci
		}

		if above && foundRise {
			if el > maxEl {
				maxEl = el
				maxElTime = t
				maxElAz = s.look.AzimuthDeg
				maxElState = s.eci
			}
			secSinceRise := int(t.Sub(riseTime).Seconds())
			if secSinceRise%groundTrackStepSec == 0 {
				geo := transform.ToGeodetic(s.ecf.R)
				groundTrack = append(groundTrack, GroundTrackPoint{
					Time:      t,
					Latitude:  geo.LatDeg(),
					Longitude: geo.LonDeg(),
					Altitude:  geo.Alt,
					Elevation: el,
				})
			}
		}

		if !above && wasAbove && foundRise {
			setTime = t
			setAz = s.look.AzimuthDeg
			break
		}

		wasAbove = above
		t = t.Add(fineStepSec * time.Second)
	}

	// Still above at windowEnd: close the pass there.
	if foundRise && setTime.IsZero() && wasAbove {
		s, err := sampleAt(prop, obs, t)
		setTime = t
		if err == nil {
			setAz = s.look.AzimuthDeg
			if s.look.ElevationDeg > maxEl {
				maxEl = s.look.ElevationDeg
				maxElTime = t
				maxElAz = s.look.AzimuthDeg
				maxElState = s.eci
			}
		}
	}

	if !foundRise || setTime.IsZero() {
		return nil, t
	}

	jt := timescale.FromTime(maxElTime)
	band := illumination.At(jt, obs.Lon, obs.Lat).Band
	sunlit := !illumination.InShadow(maxElState.R, ephemeris.SunDirection(jt))

	return &PassEvent{
		StartTime:        riseTime,
		MaxElevationTime: maxElTime,
		EndTime:          setTime,
		DurationSeconds:  setTime.Sub(riseTime).Seconds(),
		MaxElevation:     maxEl,
		AzimuthAtMax:     maxElAz,
		StartAzimuth:     riseAz,
		EndAzimuth:       setAz,
		GroundTrack:      groundTrack,
		ObserverBand:     band,
		Sunlit:           sunlit,
		Visible:          sunlit && band >= illumination.NauticalTwilight,
	}, setTime
}

type sample struct {
	eci  orbit.StateVector
	ecf  orbit.StateVector
	look transform.LookAngles
}

// sampleAt propagates the object to t and computes the look angles from
// the observer.
func sampleAt(prop *propagation.KeplerPropagator, obs transform.Observer, t time.Time) (sample, error) {
	eci, err := prop.Propagate(t)
	if err != nil {
		return sample{}, err
	}
	ecf := transform.ToEarthFixed(eci, timescale.SiderealAngle(timescale.FromTime(t)))
	return sample{eci: eci, ecf: ecf, look: obs.Look(ecf.R)}, nil
}
