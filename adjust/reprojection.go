package adjust

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"

	"bundleadjust/camera"
)

// reprojectionCost is the residual term for one observation of one landmark
// in one frame. Its parameter blocks, in order: the intrinsics-group vector
// [focal, ppx, ppy, aspect, skew, d...], the extrinsic vector
// [rx, ry, rz, tx, ty, tz], and the landmark position [x, y, z]. The
// residual is the predicted minus the observed pixel.
type reprojectionCost struct {
	observed r2.Point
}

func (rc *reprojectionCost) NumResiduals() int { return 2 }

func (rc *reprojectionCost) Evaluate(params [][]float64, residuals []float64) error {
	if len(params) != 3 {
		return errors.Errorf("reprojection term expects 3 parameter blocks, got %d", len(params))
	}
	intr, extr, lm := params[0], params[1], params[2]

	// x_cam = R(r) * X + t
	px, py, pz := angleAxisRotate(extr[0], extr[1], extr[2], lm[0], lm[1], lm[2])
	px += extr[3]
	py += extr[4]
	pz += extr[5]

	xn := px / pz
	yn := py / pz
	xd, yd := camera.DistortPoint(intr[5:], xn, yn)

	focal, ppx, ppy, aspect, skew := intr[0], intr[1], intr[2], intr[3], intr[4]
	u := focal*xd + skew*yd + ppx
	v := focal/aspect*yd + ppy

	residuals[0] = u - rc.observed.X
	residuals[1] = v - rc.observed.Y
	return nil
}

// angleAxisRotate rotates point (x, y, z) by the Rodrigues vector
// (rx, ry, rz), falling back to the first-order expansion near zero angle
// where the normalized axis is undefined.
func angleAxisRotate(rx, ry, rz, x, y, z float64) (float64, float64, float64) {
	theta2 := rx*rx + ry*ry + rz*rz
	if theta2 <= 1e-24 {
		return x + (ry*z - rz*y), y + (rz*x - rx*z), z + (rx*y - ry*x)
	}
	theta := math.Sqrt(theta2)
	ax, ay, az := rx/theta, ry/theta, rz/theta
	cosT := math.Cos(theta)
	sinT := math.Sin(theta)
	dot := ax*x + ay*y + az*z

	ox := x*cosT + (ay*z-az*y)*sinT + ax*dot*(1-cosT)
	oy := y*cosT + (az*x-ax*z)*sinT + ay*dot*(1-cosT)
	oz := z*cosT + (ax*y-ay*x)*sinT + az*dot*(1-cosT)
	return ox, oy, oz
}
