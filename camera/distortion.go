package camera

import "github.com/pkg/errors"

// DistortionType is the name of the lens distortion model.
type DistortionType string

const (
	// NoDistortionType models an ideal lens with no distortion.
	NoDistortionType = DistortionType("none")
	// RadialDistortionType is a two coefficient polynomial radial model.
	RadialDistortionType = DistortionType("radial")
	// BrownConradyDistortionType is the five coefficient radial-tangential
	// model commonly used for narrow field of view lenses.
	BrownConradyDistortionType = DistortionType("brown_conrady")
	// RationalDistortionType is the eight coefficient rational
	// radial-tangential model for lenses with strong distortion.
	RationalDistortionType = DistortionType("rational")
)

// Distorter defines a Transform that takes a normalized image point and
// distorts it according to the model.
type Distorter interface {
	ModelType() DistortionType
	CheckValid() error
	Parameters() []float64
	Transform(x, y float64) (float64, float64)
}

// InvalidDistortionError is used when the distortion parameters are invalid.
func InvalidDistortionError(msg string) error {
	return errors.Wrapf(errors.New("invalid distortion parameters"), msg)
}

// NumDistortionParams returns the number of coefficients the given
// distortion model expects.
func NumDistortionParams(distortionType DistortionType) (int, error) {
	switch distortionType {
	case NoDistortionType:
		return 0, nil
	case RadialDistortionType:
		return 2, nil
	case BrownConradyDistortionType:
		return 5, nil
	case RationalDistortionType:
		return 8, nil
	default:
		return 0, errors.Errorf("do not know %q distortion model", distortionType)
	}
}

// NewDistorter returns a Distorter given a valid DistortionType and its parameters.
func NewDistorter(distortionType DistortionType, parameters []float64) (Distorter, error) {
	switch distortionType {
	case NoDistortionType:
		if len(parameters) != 0 {
			return nil, errors.Errorf("distortion model %q takes no parameters, got %d", distortionType, len(parameters))
		}
		return &NoDistortion{}, nil
	case RadialDistortionType, BrownConradyDistortionType, RationalDistortionType:
		want, err := NumDistortionParams(distortionType)
		if err != nil {
			return nil, err
		}
		if len(parameters) != want {
			return nil, errors.Errorf("distortion model %q expects %d parameters, got %d", distortionType, want, len(parameters))
		}
		coeffs := make([]float64, len(parameters))
		copy(coeffs, parameters)
		return &polynomialDistortion{modelType: distortionType, coeffs: coeffs}, nil
	default:
		return nil, errors.Errorf("do not know how to parse %q distortion model", distortionType)
	}
}

// NoDistortion is the identity distortion model.
type NoDistortion struct{}

// ModelType returns the type of distortion model.
func (nd *NoDistortion) ModelType() DistortionType { return NoDistortionType }

// CheckValid checks if the fields for NoDistortion have valid inputs.
func (nd *NoDistortion) CheckValid() error { return nil }

// Parameters returns the parameters of the distortion model as a list of floats.
func (nd *NoDistortion) Parameters() []float64 { return []float64{} }

// Transform is the identity transform.
func (nd *NoDistortion) Transform(x, y float64) (float64, float64) { return x, y }

// polynomialDistortion covers the radial, brown_conrady and rational models,
// which share one coefficient layout [k1, k2, p1, p2, k3, k4, k5, k6]
// truncated to the model's parameter count.
type polynomialDistortion struct {
	modelType DistortionType
	coeffs    []float64
}

func (pd *polynomialDistortion) ModelType() DistortionType { return pd.modelType }

func (pd *polynomialDistortion) CheckValid() error {
	if pd == nil {
		return InvalidDistortionError("distortion parameters not provided")
	}
	want, err := NumDistortionParams(pd.modelType)
	if err != nil {
		return err
	}
	if len(pd.coeffs) != want {
		return InvalidDistortionError("wrong coefficient count")
	}
	return nil
}

func (pd *polynomialDistortion) Parameters() []float64 {
	out := make([]float64, len(pd.coeffs))
	copy(out, pd.coeffs)
	return out
}

// Transform applies the forward distortion to a normalized image point.
//
//	x_d = x*s + 2*p1*x*y + p2*(r² + 2*x²)
//	y_d = y*s + p1*(r² + 2*y²) + 2*p2*x*y
//
// where s = (1 + k1*r² + k2*r⁴ + k3*r⁶) / (1 + k4*r² + k5*r⁴ + k6*r⁶),
// with coefficients beyond the model's count treated as zero.
func (pd *polynomialDistortion) Transform(x, y float64) (float64, float64) {
	return DistortPoint(pd.coeffs, x, y)
}

func distortCoeff(coeffs []float64, i int) float64 {
	if i < len(coeffs) {
		return coeffs[i]
	}
	return 0
}

// DistortPoint applies the shared polynomial distortion to a normalized
// image point given a raw coefficient vector in the [k1, k2, p1, p2, k3,
// k4, k5, k6] layout, truncated to the active model's count. It is the
// kernel behind polynomialDistortion.Transform and is used directly where
// the coefficients live in a flat optimization vector.
func DistortPoint(coeffs []float64, x, y float64) (float64, float64) {
	k1 := distortCoeff(coeffs, 0)
	k2 := distortCoeff(coeffs, 1)
	p1 := distortCoeff(coeffs, 2)
	p2 := distortCoeff(coeffs, 3)
	k3 := distortCoeff(coeffs, 4)
	k4 := distortCoeff(coeffs, 5)
	k5 := distortCoeff(coeffs, 6)
	k6 := distortCoeff(coeffs, 7)

	r2 := x*x + y*y
	r4 := r2 * r2
	r6 := r4 * r2
	scale := 1.0 + k1*r2 + k2*r4 + k3*r6
	if denom := 1.0 + k4*r2 + k5*r4 + k6*r6; denom != 0 {
		scale /= denom
	}
	xd := x*scale + 2*p1*x*y + p2*(r2+2*x*x)
	yd := y*scale + p1*(r2+2*y*y) + 2*p2*x*y
	return xd, yd
}
