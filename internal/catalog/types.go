// Package catalog holds the tracked objects: their identities and the
// inertial state each one is propagated from.
//
// Objects come from explicit state vectors in the configuration or from
// two-line element sets, which are converted once with SGP4 to a state
// vector at the element set epoch. The catalog is built at startup and is
// immutable afterwards.
package catalog

import (
	"time"

	"github.com/vsr83/WebGLGlobeTest/internal/orbit"
)

// Object is one tracked object.
type Object struct {
	ID     int
	Name   string
	Source string // "state" or "tle"
	State  orbit.StateVector
	Mu     float64
}

// Catalog is the complete set of tracked objects.
type Catalog struct {
	Source   string
	LoadedAt time.Time
	Objects  []Object
}

// Lookup returns the object with the given ID.
func (c *Catalog) Lookup(id int) (Object, bool) {
	for _, o := range c.Objects {
		if o.ID == id {
			return o, true
		}
	}
	return Object{}, false
}

// TLEEntry represents a single object's two-line element set.
type TLEEntry struct {
	ID    int
	Name  string
	Epoch time.Time
	Line1 string
	Line2 string
}

// ObjectSpec is an object as written in the configuration file. Either
// Position and Velocity (km, km/s, inertial, at Epoch) or TLE1 and TLE2 must
// be set.
type ObjectSpec struct {
	ID       int       `mapstructure:"id"`
	Name     string    `mapstructure:"name"`
	Position []float64 `mapstructure:"position"`
	Velocity []float64 `mapstructure:"velocity"`
	Epoch    string    `mapstructure:"epoch"` // RFC 3339
	TLE1     string    `mapstructure:"tle1"`
	TLE2     string    `mapstructure:"tle2"`
}
