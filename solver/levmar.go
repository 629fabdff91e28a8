package solver

import (
	"math"

	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"
	"gonum.org/v1/gonum/mat"
)

const (
	initialDamping = 1e-4
	minDamping     = 1e-12
	maxDamping     = 1e12
)

var errNonFinite = errors.New("cost function produced a non-finite residual")

// freeParam addresses one optimizable scalar: a block handle plus an index
// within the block. Fully constant blocks and subset-constant indices never
// appear in the free set, so their values are untouched by a solve.
type freeParam struct {
	block int
	index int
}

// Solve minimizes the problem's robustified sum of squared residuals with a
// damped Gauss-Newton (Levenberg-Marquardt) iteration, mutating the
// problem's parameter blocks in place. It is synchronous, sequential and
// deterministic: blocks and residuals are visited in insertion order.
func Solve(opts Options, p *Problem, logger logging.Logger) Summary {
	if logger == nil {
		logger = logging.NewBlankLogger("solver")
	}
	summary := Summary{
		ParameterBlocks: p.NumParameterBlocks(),
		ResidualBlocks:  p.NumResidualBlocks(),
	}
	if err := opts.Validate(); err != nil {
		summary.Status = StatusFailure
		summary.Message = err.Error()
		return summary
	}

	free := p.freeParameters()
	m := p.numResiduals()
	if len(p.residuals) == 0 || len(free) == 0 || m == 0 {
		summary.Status = StatusConverged
		summary.Message = "nothing to optimize"
		return summary
	}
	n := len(free)

	r := mat.NewVecDense(m, nil)
	cost, err := p.evaluate(r)
	if err != nil {
		summary.Status = StatusFailure
		summary.Message = err.Error()
		return summary
	}
	summary.InitialCost = cost
	summary.FinalCost = cost

	x := p.getFree(free)
	xNew := make([]float64, n)
	rNew := mat.NewVecDense(m, nil)
	lambda := initialDamping

	var g mat.VecDense
	var jtj mat.SymDense
	done := false
	for iter := 1; iter <= opts.MaxIterations && !done; iter++ {
		summary.Iterations = iter
		J, jerr := p.jacobian(free, m)
		if jerr != nil {
			summary.Status = StatusFailure
			summary.Message = jerr.Error()
			return summary
		}
		g.MulVec(J.T(), r)
		if mat.Norm(&g, math.Inf(1)) <= opts.GradientTolerance {
			summary.Status = StatusConverged
			summary.Message = "gradient tolerance reached"
			done = true
			break
		}
		jtj.SymOuterK(1, J.T())

		stepped := false
		for !stepped && !done {
			damped := mat.NewSymDense(n, nil)
			damped.CopySym(&jtj)
			for i := 0; i < n; i++ {
				damped.SetSym(i, i, jtj.At(i, i)+lambda)
			}
			var chol mat.Cholesky
			if !chol.Factorize(damped) {
				lambda *= 10
				if lambda > maxDamping {
					summary.Status = StatusFailure
					summary.Message = "normal equations could not be factorized"
					return summary
				}
				continue
			}
			var delta mat.VecDense
			if serr := chol.SolveVecTo(&delta, &g); serr != nil {
				lambda *= 10
				if lambda > maxDamping {
					summary.Status = StatusFailure
					summary.Message = "normal equations could not be solved"
					return summary
				}
				continue
			}

			for i := 0; i < n; i++ {
				xNew[i] = x[i] - delta.AtVec(i)
			}
			p.setFree(free, xNew)
			newCost, eerr := p.evaluate(rNew)
			if eerr != nil {
				p.setFree(free, x)
				if !errors.Is(eerr, errNonFinite) {
					summary.Status = StatusFailure
					summary.Message = eerr.Error()
					return summary
				}
				// a non-finite trial step is rejected, not fatal
				newCost = math.Inf(1)
			}

			if newCost < cost {
				costChange := cost - newCost
				copy(x, xNew)
				r.CopyVec(rNew)
				cost = newCost
				lambda = math.Max(lambda/3, minDamping)
				stepped = true
				if costChange <= opts.FunctionTolerance*math.Max(cost, minDamping) {
					summary.Status = StatusConverged
					summary.Message = "function tolerance reached"
					done = true
				} else if mat.Norm(&delta, 2) <= opts.ParameterTolerance*(norm2(x)+opts.ParameterTolerance) {
					summary.Status = StatusConverged
					summary.Message = "parameter tolerance reached"
					done = true
				}
			} else {
				p.setFree(free, x)
				lambda *= 10
				if lambda > maxDamping {
					summary.Status = StatusConverged
					summary.Message = "step size below tolerance"
					done = true
				}
			}
		}
		if opts.Verbose {
			logger.Infof("iteration %d: cost %.6e, damping %.3e", iter, cost, lambda)
		} else {
			logger.Debugf("iteration %d: cost %.6e, damping %.3e", iter, cost, lambda)
		}
	}
	if !done {
		summary.Status = StatusNoConvergence
		summary.Message = "maximum iterations reached"
	}
	summary.FinalCost = cost
	return summary
}

func norm2(x []float64) float64 {
	sum := 0.0
	for _, v := range x {
		sum += v * v
	}
	return math.Sqrt(sum)
}

// freeParameters lists the optimizable scalars in block insertion order.
func (p *Problem) freeParameters() []freeParam {
	var free []freeParam
	for bi, block := range p.blocks {
		if p.constant[BlockRef(bi)] {
			continue
		}
		held := map[int]bool{}
		for _, idx := range p.subsets[BlockRef(bi)] {
			held[idx] = true
		}
		for i := range block {
			if !held[i] {
				free = append(free, freeParam{block: bi, index: i})
			}
		}
	}
	return free
}

func (p *Problem) getFree(free []freeParam) []float64 {
	x := make([]float64, len(free))
	for i, fp := range free {
		x[i] = p.blocks[fp.block][fp.index]
	}
	return x
}

func (p *Problem) setFree(free []freeParam, x []float64) {
	for i, fp := range free {
		p.blocks[fp.block][fp.index] = x[i]
	}
}

// evaluate fills dst with the robust-weighted residual vector and returns
// the total cost 0.5 * sum(rho(s)) over residual blocks.
func (p *Problem) evaluate(dst *mat.VecDense) (float64, error) {
	cost := 0.0
	offset := 0
	for _, rb := range p.residuals {
		dim := rb.cost.NumResiduals()
		params := make([][]float64, len(rb.refs))
		for i, ref := range rb.refs {
			params[i] = p.blocks[ref]
		}
		residuals := make([]float64, dim)
		if err := rb.cost.Evaluate(params, residuals); err != nil {
			return 0, errors.Wrap(err, "cost function evaluation failed")
		}
		s := 0.0
		for _, v := range residuals {
			s += v * v
		}
		if math.IsNaN(s) || math.IsInf(s, 0) {
			return 0, errNonFinite
		}
		weight := 1.0
		if rb.loss != nil {
			rho, drho := rb.loss.Evaluate(s)
			cost += 0.5 * rho
			weight = math.Sqrt(math.Max(drho, 0))
		} else {
			cost += 0.5 * s
		}
		for i, v := range residuals {
			dst.SetVec(offset+i, weight*v)
		}
		offset += dim
	}
	return cost, nil
}

// jacobian computes the m x n Jacobian of the weighted residual vector by
// central differences over the free parameters.
func (p *Problem) jacobian(free []freeParam, m int) (*mat.Dense, error) {
	n := len(free)
	J := mat.NewDense(m, n, nil)
	plus := mat.NewVecDense(m, nil)
	minus := mat.NewVecDense(m, nil)
	for j, fp := range free {
		orig := p.blocks[fp.block][fp.index]
		h := 1e-6 * math.Max(math.Abs(orig), 1.0)

		p.blocks[fp.block][fp.index] = orig + h
		if _, err := p.evaluate(plus); err != nil {
			p.blocks[fp.block][fp.index] = orig
			return nil, err
		}
		p.blocks[fp.block][fp.index] = orig - h
		if _, err := p.evaluate(minus); err != nil {
			p.blocks[fp.block][fp.index] = orig
			return nil, err
		}
		p.blocks[fp.block][fp.index] = orig

		inv := 1.0 / (2 * h)
		for i := 0; i < m; i++ {
			J.Set(i, j, (plus.AtVec(i)-minus.AtVec(i))*inv)
		}
	}
	return J, nil
}
