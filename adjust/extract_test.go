package adjust

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/rdk/spatialmath"
	"go.viam.com/test"

	"bundleadjust/camera"
)

func TestExtrinsicVectorRoundTrip(t *testing.T) {
	pose := spatialmath.NewPose(
		r3.Vector{X: 1, Y: -2, Z: 3},
		&spatialmath.R4AA{Theta: math.Pi / 3, RX: 0, RY: 0, RZ: 1},
	)
	params := extrinsicVector(pose)
	test.That(t, params, test.ShouldHaveLength, extrinsicSize)

	back := poseFromExtrinsicVector(params)
	test.That(t, back.Point().X, test.ShouldAlmostEqual, pose.Point().X)
	test.That(t, back.Point().Y, test.ShouldAlmostEqual, pose.Point().Y)
	test.That(t, back.Point().Z, test.ShouldAlmostEqual, pose.Point().Z)
	test.That(t, spatialmath.OrientationAlmostEqual(back.Orientation(), pose.Orientation()), test.ShouldBeTrue)
}

func TestExtrinsicVectorIdentity(t *testing.T) {
	pose := spatialmath.NewPose(r3.Vector{}, spatialmath.NewZeroOrientation())
	params := extrinsicVector(pose)
	test.That(t, params, test.ShouldResemble, []float64{0, 0, 0, 0, 0, 0})

	back := poseFromExtrinsicVector(params)
	test.That(t, back.Point(), test.ShouldResemble, r3.Vector{})
	test.That(t, spatialmath.OrientationAlmostEqual(back.Orientation(), pose.Orientation()), test.ShouldBeTrue)
}

func TestExtractCameraParametersSharing(t *testing.T) {
	shared := camera.NewIntrinsics(1000, 500, 500)
	other := camera.NewIntrinsics(800, 320, 240)
	pose := spatialmath.NewPose(r3.Vector{}, spatialmath.NewZeroOrientation())
	cams := camera.CameraMap{
		1: camera.NewCamera(pose, shared),
		2: camera.NewCamera(pose, shared),
		3: camera.NewCamera(pose, other),
	}

	camParams, intrParams, frameToIntr, err := extractCameraParameters(cams, 0)
	test.That(t, err, test.ShouldBeNil)

	// every input frame appears, and frames sharing intrinsics share a group
	test.That(t, camParams, test.ShouldHaveLength, 3)
	test.That(t, frameToIntr, test.ShouldHaveLength, 3)
	test.That(t, len(intrParams), test.ShouldBeLessThanOrEqualTo, len(cams))
	test.That(t, len(intrParams), test.ShouldEqual, 2)
	test.That(t, frameToIntr[1], test.ShouldEqual, frameToIntr[2])
	test.That(t, frameToIntr[3], test.ShouldNotEqual, frameToIntr[1])

	test.That(t, intrParams[frameToIntr[1]], test.ShouldResemble, []float64{1000, 500, 500, 1, 0})
	test.That(t, intrParams[frameToIntr[3]], test.ShouldResemble, []float64{800, 320, 240, 1, 0})
}

func TestExtractCameraParametersScratchCopies(t *testing.T) {
	intr := camera.NewIntrinsics(1000, 500, 500)
	pose := spatialmath.NewPose(r3.Vector{}, spatialmath.NewZeroOrientation())
	cams := camera.CameraMap{7: camera.NewCamera(pose, intr)}

	_, intrParams, _, err := extractCameraParameters(cams, 0)
	test.That(t, err, test.ShouldBeNil)

	// mutating the scratch vectors never touches the input camera
	intrParams[0][0] = 999
	test.That(t, intr.FocalLength, test.ShouldEqual, 1000.0)
}

func TestIntrinsicVectorPadsAndTruncates(t *testing.T) {
	dist, err := camera.NewDistorter(camera.BrownConradyDistortionType, []float64{0.1, -0.05, 0.001, -0.002, 0.01})
	test.That(t, err, test.ShouldBeNil)
	in := camera.NewIntrinsics(1000, 500, 500)
	in.Distortion = dist

	// configured model with fewer coefficients truncates
	test.That(t, intrinsicVector(in, 2), test.ShouldResemble, []float64{1000, 500, 500, 1, 0, 0.1, -0.05})
	// configured model with more coefficients zero-pads
	test.That(t, intrinsicVector(in, 8),
		test.ShouldResemble, []float64{1000, 500, 500, 1, 0, 0.1, -0.05, 0.001, -0.002, 0.01, 0, 0, 0})
}

func TestExtractCameraParametersInvalidCamera(t *testing.T) {
	cams := camera.CameraMap{
		1: camera.NewCamera(spatialmath.NewPose(r3.Vector{}, spatialmath.NewZeroOrientation()), nil),
	}
	_, _, _, err := extractCameraParameters(cams, 0)
	test.That(t, err, test.ShouldNotBeNil)
}
