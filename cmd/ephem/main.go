// Command ephem prints the frame environment and the sub-points of the
// configured objects for one instant.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math"
	"os"
	"time"

	"github.com/vsr83/WebGLGlobeTest/internal/catalog"
	"github.com/vsr83/WebGLGlobeTest/internal/config"
	"github.com/vsr83/WebGLGlobeTest/internal/illumination"
	"github.com/vsr83/WebGLGlobeTest/internal/passes"
	"github.com/vsr83/WebGLGlobeTest/internal/propagation"
	"github.com/vsr83/WebGLGlobeTest/internal/scene"
	"github.com/vsr83/WebGLGlobeTest/internal/transform"
)

func main() {
	at := flag.String("at", "", "RFC 3339 time (default now)")
	configPath := flag.String("config", "", "path to a config file (default $GLOBE_CONFIG)")
	passHours := flag.Float64("passes", 0, "also predict passes over the configured observer for this many hours")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	now := time.Now().UTC()
	if *at != "" {
		t, err := time.Parse(time.RFC3339, *at)
		if err != nil {
			fmt.Println("ERROR parsing -at:", err)
			os.Exit(1)
		}
		now = t.UTC()
	}

	cfg, err := config.Load(*configPath, logger)
	if err != nil {
		fmt.Println("ERROR loading config:", err)
		os.Exit(1)
	}

	env := scene.Environment(now)
	fmt.Printf("Time:          %s\n", env.Time.Format(time.RFC3339Nano))
	fmt.Printf("Julian date:   %.6f (JD %d + %.6f)\n", env.JulianDate, env.JD, env.JT)
	fmt.Printf("Sidereal time: %.6f°\n", env.SiderealDeg)
	fmt.Printf("Sun:           RA %.4f° Decl %+.4f°\n", deg(env.Sun.RA), deg(env.Sun.Decl))
	fmt.Printf("Moon:          RA %.4f° Decl %+.4f° (%.0f%% lit, %s)\n",
		deg(env.Moon.RA), deg(env.Moon.Decl), env.MoonPhase.Illumination*100, waxing(env.MoonPhase.Waxing))
	fmt.Printf("Subsolar:      lat %+.4f° lon %+.4f°\n", env.Subsolar.LatDeg(), env.Subsolar.LonDeg())

	obs := transform.NewObserver(cfg.Observer.LatDeg, cfg.Observer.LonDeg, cfg.Observer.AltKm)
	here := illumination.Evaluate(obs.Lon, obs.Lat, env.Sun, env.SiderealRad)
	fmt.Printf("Observer:      lat %+.4f° lon %+.4f° sun alt %+.2f° (%s)\n",
		cfg.Observer.LatDeg, cfg.Observer.LonDeg, here.AltitudeDeg, here.Band)

	ctx := context.Background()
	cat, err := catalog.Load(ctx, cfg.Catalog, logger)
	if err != nil {
		fmt.Println("ERROR loading catalog:", err)
		os.Exit(1)
	}
	store := catalog.NewStore()
	store.Set(cat)

	prop := propagation.NewPropagator(store, cfg.Propagation, logger)
	kf, err := prop.PropagateToTime(ctx, now)
	if err != nil {
		fmt.Println("ERROR propagating:", err)
		os.Exit(1)
	}

	fmt.Printf("\nObjects (%s, %d loaded):\n", cat.Source, len(cat.Objects))
	for _, o := range kf.Objects {
		lit := "shadow"
		if o.Sunlit {
			lit = "sunlit"
		}
		fmt.Printf("  %6d %-24s lat %+8.3f° lon %+9.3f° alt %8.1f km  %s, ground %s\n",
			o.ID, o.Name, o.SubPoint.LatDeg(), o.SubPoint.LonDeg(), o.SubPoint.Alt, lit, o.Band)
	}
	for _, f := range kf.Failed {
		fmt.Printf("  %6d ERROR %s\n", f.ID, f.Error)
	}

	if *passHours <= 0 {
		return
	}

	results := passes.Predict(ctx, passes.Request{
		Observer:     obs,
		Objects:      cat.Objects,
		Start:        now,
		HorizonHours: *passHours,
		MinElevation: 10,
		MaxPasses:    10,
	})
	fmt.Printf("\nPasses over observer, next %.0fh:\n", *passHours)
	for _, r := range results {
		if r.Error != "" {
			fmt.Printf("  %6d: ERROR %s\n", r.ID, r.Error)
			continue
		}
		fmt.Printf("  %6d %s: %d passes\n", r.ID, r.Name, len(r.Passes))
		for j, p := range r.Passes {
			vis := ""
			if p.Visible {
				vis = " visible"
			}
			fmt.Printf("    pass %d: start=%v maxEl=%.1f° dur=%.0fs%s\n",
				j, p.StartTime.Format(time.RFC3339), p.MaxElevation, p.DurationSeconds, vis)
		}
	}
}

func deg(rad float64) float64 { return rad * 180 / math.Pi }

func waxing(w bool) string {
	if w {
		return "waxing"
	}
	return "waning"
}
