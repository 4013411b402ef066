package api

import (
	"fmt"
	"math"
	"net/url"
	"strconv"
	"time"
)

// parseTime reads the "t" parameter (RFC 3339), defaulting to now.
func parseTime(q url.Values, now time.Time) (time.Time, error) {
	v := q.Get("t")
	if v == "" {
		return now, nil
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid t parameter, must be RFC 3339: %q", v)
	}
	return t, nil
}

// floatParam reads a finite float in [min, max], or def when absent.
func floatParam(q url.Values, name string, def, min, max float64) (float64, error) {
	v := q.Get(name)
	if v == "" {
		return def, nil
	}
	x, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(x) || x < min || x > max {
		return 0, fmt.Errorf("invalid %s parameter, must be %g to %g", name, min, max)
	}
	return x, nil
}

// intParam reads an integer in [min, max], or def when absent.
func intParam(q url.Values, name string, def, min, max int) (int, error) {
	v := q.Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < min || n > max {
		return 0, fmt.Errorf("invalid %s parameter, must be %d-%d", name, min, max)
	}
	return n, nil
}
