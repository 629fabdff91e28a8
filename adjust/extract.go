package adjust

import (
	"sort"

	"github.com/golang/geo/r3"
	"go.viam.com/rdk/spatialmath"
	"gonum.org/v1/gonum/num/quat"

	"bundleadjust/camera"
)

// extrinsicSize is the per-frame extrinsic parameter count: a Rodrigues
// rotation vector followed by a translation.
const extrinsicSize = 6

// extractCameraParameters converts every camera into scratch vectors for
// optimization: a frame-to-extrinsic map, the deduplicated intrinsic
// vectors, and a frame-to-intrinsics-group index. Cameras referencing the
// same *Intrinsics share one group. The extraction is pure; the inputs are
// never mutated and every returned vector is a fresh copy.
func extractCameraParameters(
	cams camera.CameraMap,
	ndp int,
) (map[camera.FrameID][]float64, [][]float64, map[camera.FrameID]int, error) {
	camParams := make(map[camera.FrameID][]float64, len(cams))
	var intrParams [][]float64
	frameToIntr := make(map[camera.FrameID]int, len(cams))
	groupOf := map[*camera.Intrinsics]int{}

	for _, id := range sortedFrameIDs(cams) {
		cam := cams[id]
		if err := cam.CheckValid(); err != nil {
			return nil, nil, nil, err
		}
		camParams[id] = extrinsicVector(cam.Pose)
		group, ok := groupOf[cam.Intrinsics]
		if !ok {
			group = len(intrParams)
			groupOf[cam.Intrinsics] = group
			intrParams = append(intrParams, intrinsicVector(cam.Intrinsics, ndp))
		}
		frameToIntr[id] = group
	}
	return camParams, intrParams, frameToIntr, nil
}

// extrinsicVector flattens a camera pose into [rx, ry, rz, tx, ty, tz]: the
// Rodrigues vector of the world-to-camera rotation R and the translation
// t = -R*c for camera center c.
func extrinsicVector(pose spatialmath.Pose) []float64 {
	rod := pose.Orientation().AxisAngles().ToR3()
	q := pose.Orientation().Quaternion()
	t := rotateByQuat(q, pose.Point()).Mul(-1)
	return []float64{rod.X, rod.Y, rod.Z, t.X, t.Y, t.Z}
}

// poseFromExtrinsicVector is the inverse of extrinsicVector.
func poseFromExtrinsicVector(params []float64) spatialmath.Pose {
	rod := r3.Vector{X: params[0], Y: params[1], Z: params[2]}
	t := r3.Vector{X: params[3], Y: params[4], Z: params[5]}
	var orientation spatialmath.Orientation
	if rod.Norm() == 0 {
		orientation = spatialmath.NewZeroOrientation()
	} else {
		orientation = spatialmath.R3ToR4(rod)
	}
	// c = -R^T * t
	center := rotateByQuat(quat.Conj(orientation.Quaternion()), t).Mul(-1)
	return spatialmath.NewPose(center, orientation)
}

// intrinsicVector flattens intrinsics into [focal, ppx, ppy, aspect, skew,
// d0..dD-1] for the configured distortion parameter count, truncating or
// zero-padding the camera's own coefficients as needed.
func intrinsicVector(in *camera.Intrinsics, ndp int) []float64 {
	params := make([]float64, 5+ndp)
	params[0] = in.FocalLength
	params[1] = in.Ppx
	params[2] = in.Ppy
	params[3] = in.AspectRatio
	params[4] = in.Skew
	copy(params[5:], in.Distortion.Parameters())
	return params
}

func rotateByQuat(q quat.Number, v r3.Vector) r3.Vector {
	p := quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}
	r := quat.Mul(q, quat.Mul(p, quat.Conj(q)))
	return r3.Vector{X: r.Imag, Y: r.Jmag, Z: r.Kmag}
}

func sortedFrameIDs(cams camera.CameraMap) []camera.FrameID {
	ids := make([]camera.FrameID, 0, len(cams))
	for id := range cams {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func sortedTrackIDs(lms map[camera.TrackID][]float64) []camera.TrackID {
	ids := make([]camera.TrackID, 0, len(lms))
	for id := range lms {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
