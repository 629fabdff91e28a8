package camera

import (
	"encoding/json"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func TestIntrinsicsCheckValid(t *testing.T) {
	var nilIntr *Intrinsics
	test.That(t, nilIntr.CheckValid(), test.ShouldNotBeNil)

	in := NewIntrinsics(1000, 500, 400)
	test.That(t, in.CheckValid(), test.ShouldBeNil)

	bad := *in
	bad.FocalLength = 0
	test.That(t, bad.CheckValid(), test.ShouldNotBeNil)
	bad = *in
	bad.AspectRatio = -1
	test.That(t, bad.CheckValid(), test.ShouldNotBeNil)
	bad = *in
	bad.Ppx = -5
	test.That(t, bad.CheckValid(), test.ShouldNotBeNil)
	bad = *in
	bad.Distortion = nil
	test.That(t, bad.CheckValid(), test.ShouldNotBeNil)
}

func TestParameterVectorRoundTrip(t *testing.T) {
	dist, err := NewDistorter(RadialDistortionType, []float64{0.1, -0.02})
	test.That(t, err, test.ShouldBeNil)
	in := &Intrinsics{
		FocalLength: 1200,
		Ppx:         640,
		Ppy:         360,
		AspectRatio: 1.05,
		Skew:        0.5,
		Distortion:  dist,
	}

	params := in.ParameterVector()
	test.That(t, params, test.ShouldResemble, []float64{1200, 640, 360, 1.05, 0.5, 0.1, -0.02})

	back, err := IntrinsicsFromVector(params, RadialDistortionType)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, back.FocalLength, test.ShouldEqual, in.FocalLength)
	test.That(t, back.Skew, test.ShouldEqual, in.Skew)
	test.That(t, back.Distortion.Parameters(), test.ShouldResemble, dist.Parameters())

	_, err = IntrinsicsFromVector(params[:5], RadialDistortionType)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = IntrinsicsFromVector(params, DistortionType("fisheye"))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestProject(t *testing.T) {
	in := NewIntrinsics(1000, 500, 500)

	// a point on the optical axis lands on the principal point
	pt := in.Project(r3.Vector{X: 0, Y: 0, Z: 10})
	test.That(t, pt.X, test.ShouldAlmostEqual, 500)
	test.That(t, pt.Y, test.ShouldAlmostEqual, 500)

	pt = in.Project(r3.Vector{X: 1, Y: -2, Z: 10})
	test.That(t, pt.X, test.ShouldAlmostEqual, 600)
	test.That(t, pt.Y, test.ShouldAlmostEqual, 300)

	// aspect ratio scales only the vertical focal length, skew mixes y into x
	in.AspectRatio = 2
	in.Skew = 10
	pt = in.Project(r3.Vector{X: 1, Y: -2, Z: 10})
	test.That(t, pt.X, test.ShouldAlmostEqual, 1000*0.1+10*-0.2+500)
	test.That(t, pt.Y, test.ShouldAlmostEqual, 500*-0.2+500)
}

func TestIntrinsicsJSON(t *testing.T) {
	dist, err := NewDistorter(BrownConradyDistortionType, []float64{0.1, -0.05, 0.001, -0.002, 0.01})
	test.That(t, err, test.ShouldBeNil)
	in := &Intrinsics{
		FocalLength: 820.5,
		Ppx:         494.9,
		Ppy:         370.7,
		AspectRatio: 1.0,
		Skew:        0,
		Distortion:  dist,
	}

	data, err := json.Marshal(in)
	test.That(t, err, test.ShouldBeNil)

	back := &Intrinsics{}
	test.That(t, json.Unmarshal(data, back), test.ShouldBeNil)
	test.That(t, back.FocalLength, test.ShouldEqual, in.FocalLength)
	test.That(t, back.DistortionModel(), test.ShouldEqual, BrownConradyDistortionType)
	test.That(t, back.Distortion.Parameters(), test.ShouldResemble, dist.Parameters())

	// missing distortion model tag means no distortion
	plain := &Intrinsics{}
	test.That(t, json.Unmarshal([]byte(`{"focal_length": 100, "aspect_ratio": 1}`), plain), test.ShouldBeNil)
	test.That(t, plain.DistortionModel(), test.ShouldEqual, NoDistortionType)
}
