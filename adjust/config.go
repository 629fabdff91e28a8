package adjust

import (
	"github.com/pkg/errors"

	"bundleadjust/camera"
	"bundleadjust/solver"
)

// CameraConfig selects the lens distortion model in effect and the intrinsic
// parameters held constant during optimization.
type CameraConfig struct {
	DistortionModel camera.DistortionType `json:"distortion_model"`
	// ConstantIntrinsics lists indices into the flat intrinsic vector
	// [focal, ppx, ppy, aspect, skew, d0...] that are held fixed for every
	// intrinsics group. More than 4+D indices freezes whole groups.
	ConstantIntrinsics []int `json:"constant_intrinsics"`
}

// Validate checks the distortion model is known and the constant indices fit
// its parameter layout.
func (c CameraConfig) Validate() error {
	ndp, err := camera.NumDistortionParams(c.DistortionModel)
	if err != nil {
		return err
	}
	seen := make(map[int]bool, len(c.ConstantIntrinsics))
	for _, idx := range c.ConstantIntrinsics {
		if idx < 0 || idx >= 5+ndp {
			return errors.Errorf("constant intrinsic index %d out of range [0, %d) for model %q",
				idx, 5+ndp, c.DistortionModel)
		}
		if seen[idx] {
			return errors.Errorf("constant intrinsic index %d listed twice", idx)
		}
		seen[idx] = true
	}
	return nil
}

// Config holds every option recognized by the bundle adjuster: its own
// options at the top level plus the solver and camera option groups as
// named fields.
type Config struct {
	// Verbose writes optimization progress at each iteration.
	Verbose bool `json:"verbose"`
	// LossFunctionType is the robust loss applied to every residual term.
	LossFunctionType solver.LossFunctionType `json:"loss_function_type"`
	// LossFunctionScale is the robust loss scale factor.
	LossFunctionScale float64 `json:"loss_function_scale"`

	Solver solver.Options `json:"solver"`
	Camera CameraConfig   `json:"camera"`
}

// DefaultConfig returns the adjuster defaults: trivial loss, no distortion,
// all intrinsics free.
func DefaultConfig() Config {
	return Config{
		LossFunctionType:  solver.TrivialLoss,
		LossFunctionScale: 1.0,
		Solver:            solver.DefaultOptions(),
		Camera: CameraConfig{
			DistortionModel: camera.NoDistortionType,
		},
	}
}

// Validate rejects a malformed configuration before any optimization is
// attempted.
func (c Config) Validate() error {
	if _, err := solver.NewLossFunction(c.LossFunctionType, c.LossFunctionScale); err != nil {
		return err
	}
	if err := c.Solver.Validate(); err != nil {
		return err
	}
	return c.Camera.Validate()
}

// IntrinsicOptimizeFlags is a convenience for building the constant index
// set from per-quantity switches: anything not marked optimizable is
// enumerated as constant.
type IntrinsicOptimizeFlags struct {
	FocalLength    bool `json:"optimize_focal_length"`
	PrincipalPoint bool `json:"optimize_principal_point"`
	AspectRatio    bool `json:"optimize_aspect_ratio"`
	Skew           bool `json:"optimize_skew"`
	Distortion     bool `json:"optimize_distortion"`
}

// ConstantIndices enumerates the constant intrinsic indices implied by the
// flags for the given distortion model.
func (f IntrinsicOptimizeFlags) ConstantIndices(model camera.DistortionType) ([]int, error) {
	ndp, err := camera.NumDistortionParams(model)
	if err != nil {
		return nil, err
	}
	var constant []int
	if !f.FocalLength {
		constant = append(constant, 0)
	}
	if !f.PrincipalPoint {
		constant = append(constant, 1, 2)
	}
	if !f.AspectRatio {
		constant = append(constant, 3)
	}
	if !f.Skew {
		constant = append(constant, 4)
	}
	if !f.Distortion {
		for i := 0; i < ndp; i++ {
			constant = append(constant, 5+i)
		}
	}
	return constant, nil
}
