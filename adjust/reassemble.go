package adjust

import (
	"github.com/golang/geo/r3"

	"bundleadjust/camera"
)

// reassembleCameras builds a new camera collection from the optimized
// extrinsic and intrinsic vectors. Frames in the same intrinsics group keep
// sharing one *Intrinsics in the output. The input collection is unchanged.
func reassembleCameras(
	cams camera.CameraMap,
	camParams map[camera.FrameID][]float64,
	intrParams [][]float64,
	frameToIntr map[camera.FrameID]int,
	model camera.DistortionType,
) (camera.CameraMap, error) {
	groupIntrinsics := make([]*camera.Intrinsics, len(intrParams))
	for i, params := range intrParams {
		in, err := camera.IntrinsicsFromVector(params, model)
		if err != nil {
			return nil, err
		}
		groupIntrinsics[i] = in
	}
	newCams := make(camera.CameraMap, len(cams))
	for id := range cams {
		newCams[id] = camera.NewCamera(
			poseFromExtrinsicVector(camParams[id]),
			groupIntrinsics[frameToIntr[id]],
		)
	}
	return newCams, nil
}

// reassembleLandmarks builds a new landmark collection: optimized landmarks
// get fresh objects holding their refined positions, landmarks that were
// excluded from the problem pass through untouched.
func reassembleLandmarks(
	lms camera.LandmarkMap,
	lmParams map[camera.TrackID][]float64,
) camera.LandmarkMap {
	newLms := make(camera.LandmarkMap, len(lms))
	for id, lm := range lms {
		newLms[id] = lm
	}
	for id, params := range lmParams {
		newLms[id] = camera.NewLandmark(r3.Vector{X: params[0], Y: params[1], Z: params[2]})
	}
	return newLms
}
