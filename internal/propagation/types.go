package propagation

import (
	"time"

	"github.com/vsr83/WebGLGlobeTest/internal/illumination"
	"github.com/vsr83/WebGLGlobeTest/internal/transform"
)

// Keyframe holds the positions of all tracked objects at a single point in time.
type Keyframe struct {
	Timestamp time.Time        `json:"timestamp"`
	Objects   []ObjectPosition `json:"objects"`
	Failed    []Failure        `json:"failed,omitempty"`
}

// Failure reports an object that could not be propagated to a keyframe time.
type Failure struct {
	ID    int    `json:"id"`
	Error string `json:"error"`
}

// ObjectPosition holds one object's state at a keyframe time.
type ObjectPosition struct {
	ID          int                `json:"id"`
	Name        string             `json:"name"`
	PositionECI [3]float64         `json:"position_eci"` // km
	VelocityECI [3]float64         `json:"velocity_eci"` // km/s
	PositionECF [3]float64         `json:"position_ecef"`
	VelocityECF [3]float64         `json:"velocity_ecef"`
	SubPoint    transform.Geodetic `json:"geodetic"`
	Sunlit      bool               `json:"sunlit"`
	// Band is the illumination of the ground under the object.
	Band illumination.Band `json:"band"`
}

// PropConfig holds propagation configuration.
type PropConfig struct {
	Workers int           // Worker pool size (default: runtime.NumCPU())
	Step    time.Duration // Keyframe interval (default: 5s)
	Horizon time.Duration // Propagation horizon (default: 600s)
}
