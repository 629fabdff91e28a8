package solver

import (
	"math"

	"github.com/pkg/errors"
)

// LossFunctionType names a robust loss function used to down-weight large
// residuals.
type LossFunctionType string

const (
	// TrivialLoss is the plain squared error, no robustification.
	TrivialLoss = LossFunctionType("trivial")
	// HuberLoss is quadratic near zero, linear past the scale.
	HuberLoss = LossFunctionType("huber")
	// SoftLOneLoss is a smooth approximation of the absolute error.
	SoftLOneLoss = LossFunctionType("soft_l_one")
	// CauchyLoss grows logarithmically, strongly suppressing outliers.
	CauchyLoss = LossFunctionType("cauchy")
	// ArctanLoss bounds the contribution of any single residual.
	ArctanLoss = LossFunctionType("arctan")
	// TukeyLoss rejects residuals past the scale entirely.
	TukeyLoss = LossFunctionType("tukey")
)

// Loss maps the squared norm s of a residual block to its robustified cost.
// Evaluate returns rho(s) and the derivative rho'(s); the solver reweights
// residuals by sqrt(rho'(s)).
type Loss interface {
	Evaluate(s float64) (rho, drho float64)
}

// NewLossFunction constructs a robust loss of the given kind and positive
// scale. A nil Loss is returned for TrivialLoss, meaning plain squared
// error; callers must treat nil as valid.
func NewLossFunction(kind LossFunctionType, scale float64) (Loss, error) {
	if scale <= 0 {
		return nil, errors.Errorf("loss function scale must be positive, got %v", scale)
	}
	switch kind {
	case TrivialLoss:
		return nil, nil
	case HuberLoss:
		return huberLoss{b: scale * scale, delta: scale}, nil
	case SoftLOneLoss:
		return softLOneLoss{b: scale * scale}, nil
	case CauchyLoss:
		return cauchyLoss{b: scale * scale}, nil
	case ArctanLoss:
		return arctanLoss{a: scale}, nil
	case TukeyLoss:
		return tukeyLoss{b: scale * scale}, nil
	default:
		return nil, errors.Errorf("unknown loss function type %q", kind)
	}
}

type huberLoss struct {
	b     float64
	delta float64
}

func (l huberLoss) Evaluate(s float64) (float64, float64) {
	if s <= l.b {
		return s, 1
	}
	sq := math.Sqrt(s)
	return 2*l.delta*sq - l.b, l.delta / sq
}

type softLOneLoss struct{ b float64 }

func (l softLOneLoss) Evaluate(s float64) (float64, float64) {
	sum := math.Sqrt(1 + s/l.b)
	return 2 * l.b * (sum - 1), 1 / sum
}

type cauchyLoss struct{ b float64 }

func (l cauchyLoss) Evaluate(s float64) (float64, float64) {
	return l.b * math.Log1p(s/l.b), 1 / (1 + s/l.b)
}

type arctanLoss struct{ a float64 }

func (l arctanLoss) Evaluate(s float64) (float64, float64) {
	u := s / l.a
	return l.a * math.Atan(u), 1 / (1 + u*u)
}

type tukeyLoss struct{ b float64 }

func (l tukeyLoss) Evaluate(s float64) (float64, float64) {
	if s > l.b {
		return l.b / 3, 0
	}
	u := 1 - s/l.b
	return l.b / 3 * (1 - u*u*u), u * u
}
