// Package camera holds the geometric data model consumed and produced by
// bundle adjustment: cameras, landmarks, and feature tracks.
package camera

import (
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/rdk/spatialmath"
)

// FrameID identifies one image frame and the camera that captured it.
type FrameID int64

// TrackID identifies one feature track and its landmark.
type TrackID int64

// Camera is the full state of a camera at one frame: its pose in world
// coordinates (center plus world-to-camera rotation) and its intrinsic
// calibration. Cameras are treated as immutable once published into a
// CameraMap; optimization produces new Camera objects. Cameras that share
// calibration reference the same *Intrinsics.
type Camera struct {
	Pose       spatialmath.Pose
	Intrinsics *Intrinsics
}

// NewCamera returns a camera at the given pose with the given intrinsics.
func NewCamera(pose spatialmath.Pose, intrinsics *Intrinsics) *Camera {
	return &Camera{Pose: pose, Intrinsics: intrinsics}
}

// CheckValid checks that the camera has a pose and valid intrinsics.
func (c *Camera) CheckValid() error {
	if c == nil {
		return errors.New("camera is nil")
	}
	if c.Pose == nil {
		return errors.New("camera has no pose")
	}
	return c.Intrinsics.CheckValid()
}

// Landmark is a 3-D point in world coordinates. Immutable; optimization
// produces new Landmark objects.
type Landmark struct {
	Position r3.Vector
}

// NewLandmark returns a landmark at the given position.
func NewLandmark(position r3.Vector) *Landmark {
	return &Landmark{Position: position}
}

// Observation is a single 2-D measurement of a track's landmark in one frame.
type Observation struct {
	Frame FrameID
	Point r2.Point
}

// Track is the ordered set of observations across frames believed to
// correspond to one landmark.
type Track struct {
	ID           TrackID
	Observations []Observation
}

// NewTrack returns a track over the given observations.
func NewTrack(id TrackID, observations []Observation) *Track {
	return &Track{ID: id, Observations: observations}
}

// CameraMap maps frame identifiers to cameras.
type CameraMap map[FrameID]*Camera

// LandmarkMap maps track identifiers to landmarks.
type LandmarkMap map[TrackID]*Landmark
