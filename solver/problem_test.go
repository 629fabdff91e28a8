package solver

import (
	"testing"

	"go.viam.com/test"
)

// linearCost is a test residual: sum(params) - target.
type linearCost struct {
	target float64
}

func (lc *linearCost) NumResiduals() int { return 1 }

func (lc *linearCost) Evaluate(params [][]float64, residuals []float64) error {
	sum := 0.0
	for _, block := range params {
		for _, v := range block {
			sum += v
		}
	}
	residuals[0] = sum - lc.target
	return nil
}

func TestProblemBlocks(t *testing.T) {
	p := NewProblem()
	values := []float64{1, 2, 3}
	ref := p.AddParameterBlock(values)
	test.That(t, p.NumParameterBlocks(), test.ShouldEqual, 1)

	// blocks alias the caller's slice
	p.Block(ref)[1] = 20
	test.That(t, values[1], test.ShouldEqual, 20)
}

func TestProblemAddResidualBlockValidation(t *testing.T) {
	p := NewProblem()
	ref := p.AddParameterBlock([]float64{0})

	err := p.AddResidualBlock(nil, nil, ref)
	test.That(t, err, test.ShouldNotBeNil)

	err = p.AddResidualBlock(&linearCost{}, nil)
	test.That(t, err, test.ShouldNotBeNil)

	err = p.AddResidualBlock(&linearCost{}, nil, BlockRef(5))
	test.That(t, err, test.ShouldNotBeNil)

	err = p.AddResidualBlock(&linearCost{}, nil, ref)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, p.NumResidualBlocks(), test.ShouldEqual, 1)
}

func TestProblemSubsetConstantValidation(t *testing.T) {
	p := NewProblem()
	ref := p.AddParameterBlock([]float64{1, 2, 3})

	test.That(t, p.SetSubsetConstant(ref, []int{3}), test.ShouldNotBeNil)
	test.That(t, p.SetSubsetConstant(ref, []int{-1}), test.ShouldNotBeNil)
	test.That(t, p.SetSubsetConstant(ref, []int{1, 1}), test.ShouldNotBeNil)
	test.That(t, p.SetSubsetConstant(ref, nil), test.ShouldNotBeNil)
	test.That(t, p.SetSubsetConstant(ref, []int{0, 2}), test.ShouldBeNil)
	test.That(t, p.SetSubsetConstant(BlockRef(9), []int{0}), test.ShouldNotBeNil)

	test.That(t, p.SetBlockConstant(BlockRef(9)), test.ShouldNotBeNil)
	test.That(t, p.SetBlockConstant(ref), test.ShouldBeNil)
}

func TestProblemLossOwnership(t *testing.T) {
	loss, err := NewLossFunction(HuberLoss, 1.0)
	test.That(t, err, test.ShouldBeNil)

	// never attached: the problem never takes ownership
	p := NewProblem()
	p.AddParameterBlock([]float64{0})
	test.That(t, p.OwnsLoss(loss), test.ShouldBeFalse)

	// attached once: ownership transfers
	ref := p.AddParameterBlock([]float64{1})
	err = p.AddResidualBlock(&linearCost{target: 2}, loss, ref)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, p.OwnsLoss(loss), test.ShouldBeTrue)
	test.That(t, p.OwnsLoss(nil), test.ShouldBeFalse)
}
