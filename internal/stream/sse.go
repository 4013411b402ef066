// Package stream implements Server-Sent Events (SSE) streaming of frames.
// Clients connect via GET /api/v1/stream/frames and receive one frame per
// tick, built for the view state given in the query string.
//
// SSE message format:
//
//	data: {"type":"frame","session":"…","seq":1,"frame":{…},"trails":{…}}\n\n
//
// First message is always metadata:
//
//	data: {"type":"metadata","session":"…","catalog_source":"…","objects":3,…}\n\n
//
// Keep-alive comments (:\n\n) are sent every KeepaliveInterval to prevent timeout.
// Every connection gets a fresh session ID; reconnecting clients receive a
// new metadata message.
package stream

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/vsr83/WebGLGlobeTest/internal/catalog"
	"github.com/vsr83/WebGLGlobeTest/internal/geometry"
	"github.com/vsr83/WebGLGlobeTest/internal/httputil"
	"github.com/vsr83/WebGLGlobeTest/internal/metrics"
	"github.com/vsr83/WebGLGlobeTest/internal/scene"
)

// Config holds streaming configuration.
type Config struct {
	MaxConcurrentPerIP int           // Max concurrent streams per IP (default: 10).
	MaxFrameRate       float64       // Frames per second summed over all streams (default: 200).
	BandwidthLimit     int           // Bytes per second per stream (default: 1048576).
	KeepaliveInterval  time.Duration // Keep-alive ping interval (default: 30s).
	TrustProxy         bool          // Use X-Forwarded-For / X-Real-IP for the per-IP limit.
}

// Handler manages SSE streaming connections.
type Handler struct {
	builder *scene.Builder
	store   *catalog.Store
	config  Config
	admit   *admission
	logger  *slog.Logger
	now     func() time.Time
}

// NewHandler creates a new streaming handler.
func NewHandler(builder *scene.Builder, store *catalog.Store, config Config, logger *slog.Logger) *Handler {
	if config.KeepaliveInterval <= 0 {
		config.KeepaliveInterval = 30 * time.Second
	}
	return &Handler{
		builder: builder,
		store:   store,
		config:  config,
		admit:   newAdmission(config.MaxConcurrentPerIP, config.MaxFrameRate),
		logger:  logger,
		now:     time.Now,
	}
}

// streamParams are the per-connection options parsed from the query string.
type streamParams struct {
	interval time.Duration
	trail    int
	view     geometry.ViewState
}

// parseStreamParams reads interval (ms), trail (keyframes) and the view
// state. Angles in the query are degrees.
func parseStreamParams(q url.Values) (streamParams, error) {
	p := streamParams{interval: time.Second, view: geometry.DefaultView()}

	if v := q.Get("interval"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 100 || n > 10000 {
			return p, fmt.Errorf("invalid interval parameter, must be 100-10000 ms")
		}
		p.interval = time.Duration(n) * time.Millisecond
	}

	if v := q.Get("trail"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > 120 {
			return p, fmt.Errorf("invalid trail parameter, must be 0-120")
		}
		p.trail = n
	}

	view, err := ParseView(q, p.view)
	if err != nil {
		return p, err
	}
	p.view = view
	return p, nil
}

// ParseView overrides the fields of base present in q. fov, rot_x, rot_y
// and rot_z are in degrees.
func ParseView(q url.Values, base geometry.ViewState) (geometry.ViewState, error) {
	fields := []struct {
		name string
		dst  *float64
		deg  bool
	}{
		{"fov", &base.FOV, true},
		{"aspect", &base.Aspect, false},
		{"near", &base.Near, false},
		{"far", &base.Far, false},
		{"distance", &base.Distance, false},
		{"rot_x", &base.RotX, true},
		{"rot_y", &base.RotY, true},
		{"rot_z", &base.RotZ, true},
	}
	for _, f := range fields {
		v := q.Get(f.name)
		if v == "" {
			continue
		}
		x, err := strconv.ParseFloat(v, 64)
		if err != nil || math.IsNaN(x) || math.IsInf(x, 0) {
			return base, fmt.Errorf("invalid %s parameter %q", f.name, v)
		}
		if f.deg {
			x *= math.Pi / 180
		}
		*f.dst = x
	}
	if err := base.Validate(); err != nil {
		return base, fmt.Errorf("invalid view: %w", err)
	}
	return base, nil
}

// HandleFrames serves the SSE frame stream.
// GET /api/v1/stream/frames?interval=1000&trail=20&fov=30&distance=8&rot_x=90
func (h *Handler) HandleFrames(w http.ResponseWriter, r *http.Request) {
	params, err := parseStreamParams(r.URL.Query())
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	ip := httputil.ClientIP(r, h.config.TrustProxy)
	tk, reason := h.admit.admit(ip, params.interval)
	if tk == nil {
		metrics.IncStreamErrors(reason)
		streams, reserved := h.admit.usage(ip)
		h.logger.Warn("stream refused",
			"reason", reason,
			"remote_ip", ip,
			"ip_streams", streams,
			"reserved_fps", reserved,
			"interval_ms", params.interval.Milliseconds(),
		)
		w.Header().Set("Retry-After", "30")
		msg := "too many concurrent streams"
		if reason == refusedBudget {
			msg = "frame rate budget exhausted, try a longer interval"
		}
		httputil.WriteError(w, http.StatusTooManyRequests, msg)
		return
	}

	session := uuid.NewString()
	metrics.IncStreamConnections()
	metrics.IncStreamsActive()

	startTime := time.Now()
	h.logger.Info("stream connected",
		"session", session,
		"remote_ip", ip,
		"user_agent", r.Header.Get("User-Agent"),
		"interval_ms", params.interval.Milliseconds(),
		"trail", params.trail,
	)

	defer func() {
		tk.release()
		metrics.DecStreamsActive()
		h.logger.Info("stream disconnected",
			"session", session,
			"remote_ip", ip,
			"duration_seconds", int(time.Since(startTime).Seconds()),
		)
	}()

	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.WriteError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering.
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Clear the server's WriteTimeout for this long-lived connection.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Debug("could not clear write deadline", "error", err)
	}

	c := &client{
		w:              w,
		flusher:        flusher,
		rc:             rc,
		ip:             ip,
		logger:         h.logger,
		bandwidthLimit: h.config.BandwidthLimit,
	}

	// Jittered retry interval (3-7s) against reconnection storms on restart.
	retryMs := 3000 + rand.Intn(4000)
	fmt.Fprintf(w, "retry: %d\n\n", retryMs)
	flusher.Flush()

	meta := metadataMessage{
		Type:       "metadata",
		Session:    session,
		IntervalMs: params.interval.Milliseconds(),
		Textures:   h.builder.Textures(),
		View:       params.view,
	}
	if cat := h.store.Get(); cat != nil {
		meta.CatalogSource = cat.Source
		meta.CatalogAge = int(time.Since(cat.LoadedAt).Seconds())
		meta.Objects = len(cat.Objects)
	}
	if err := c.sendJSON(meta); err != nil {
		metrics.IncStreamErrors("send_error")
		h.logger.Warn("stream send error (metadata)", "session", session, "error", err)
		return
	}

	ticker := time.NewTicker(params.interval)
	defer ticker.Stop()

	keepaliveTicker := time.NewTicker(h.config.KeepaliveInterval)
	defer keepaliveTicker.Stop()

	ctx := r.Context()
	var seq int64

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			now := h.now()
			frame, err := h.builder.Frame(ctx, now, params.view)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				metrics.IncStreamErrors("frame_error")
				h.logger.Warn("stream frame error", "session", session, "error", err)
				continue
			}

			seq++
			msg := frameMessage{
				Type:    "frame",
				Session: session,
				Seq:     seq,
				Frame:   frame,
				Trails:  h.builder.Trails(now, params.trail),
			}
			data, err := json.Marshal(msg)
			if err != nil {
				metrics.IncStreamErrors("marshal_error")
				h.logger.Warn("stream marshal error", "session", session, "error", err)
				continue
			}
			if !c.allow(len(data), now) {
				metrics.IncStreamErrors("bandwidth")
				h.logger.Debug("stream frame dropped, bandwidth limit", "session", session, "bytes", len(data))
				continue
			}
			if err := c.sendRaw(data); err != nil {
				metrics.IncStreamErrors("send_error")
				h.logger.Warn("stream send error", "session", session, "error", err)
				return
			}

			keepaliveTicker.Reset(h.config.KeepaliveInterval)

		case <-keepaliveTicker.C:
			if err := c.sendKeepalive(); err != nil {
				metrics.IncStreamErrors("send_error")
				h.logger.Warn("stream keepalive error", "session", session, "error", err)
				return
			}
		}
	}
}

// SSE message payload types.

type metadataMessage struct {
	Type          string             `json:"type"`
	Session       string             `json:"session"`
	CatalogSource string             `json:"catalog_source,omitempty"`
	CatalogAge    int                `json:"catalog_age_seconds"`
	Objects       int                `json:"objects"`
	IntervalMs    int64              `json:"interval_ms"`
	Textures      scene.Textures     `json:"textures"`
	View          geometry.ViewState `json:"view"`
}

type frameMessage struct {
	Type    string               `json:"type"`
	Session string               `json:"session"`
	Seq     int64                `json:"seq"`
	Frame   *scene.Frame         `json:"frame"`
	Trails  map[int][][3]float64 `json:"trails,omitempty"`
}
