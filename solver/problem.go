// Package solver provides a black-box nonlinear least-squares solver over a
// problem assembled from parameter blocks and residual terms. Parameter
// blocks are addressed by stable handles into an arena, never by raw
// addresses, so references stay valid for the life of the problem.
package solver

import (
	"sort"

	"github.com/pkg/errors"
)

// BlockRef is a stable handle to a parameter block in a Problem.
type BlockRef int

// CostFunction evaluates one residual term given the current values of its
// parameter blocks. Evaluate must fill residuals, whose length is
// NumResiduals, and may not retain the params slices.
type CostFunction interface {
	NumResiduals() int
	Evaluate(params [][]float64, residuals []float64) error
}

type residualBlock struct {
	cost CostFunction
	loss Loss
	refs []BlockRef
}

// Problem aggregates parameter blocks, residual terms, and per-block
// constancy constraints for a single solve. The solver mutates parameter
// block values in place; blocks alias the slices passed to
// AddParameterBlock, so callers read optimized values back out of the same
// slices after Solve returns.
type Problem struct {
	blocks      [][]float64
	constant    map[BlockRef]bool
	subsets     map[BlockRef][]int
	residuals   []residualBlock
	ownedLosses map[Loss]bool
}

// NewProblem creates an empty optimization problem.
func NewProblem() *Problem {
	return &Problem{
		constant:    map[BlockRef]bool{},
		subsets:     map[BlockRef][]int{},
		ownedLosses: map[Loss]bool{},
	}
}

// AddParameterBlock registers a mutable parameter vector and returns its
// handle. The problem aliases values rather than copying; the caller must
// not resize or share it for the duration of the solve.
func (p *Problem) AddParameterBlock(values []float64) BlockRef {
	p.blocks = append(p.blocks, values)
	return BlockRef(len(p.blocks) - 1)
}

// Block returns the parameter vector for a handle.
func (p *Problem) Block(ref BlockRef) []float64 {
	return p.blocks[ref]
}

// AddResidualBlock registers one residual term over the given parameter
// blocks with an optional robust loss (nil means plain squared error). If a
// non-nil loss is attached, the problem takes ownership of it.
func (p *Problem) AddResidualBlock(cost CostFunction, loss Loss, refs ...BlockRef) error {
	if cost == nil {
		return errors.New("residual block needs a cost function")
	}
	if cost.NumResiduals() <= 0 {
		return errors.Errorf("cost function must have a positive residual count, got %d", cost.NumResiduals())
	}
	if len(refs) == 0 {
		return errors.New("residual block needs at least one parameter block")
	}
	for _, ref := range refs {
		if int(ref) < 0 || int(ref) >= len(p.blocks) {
			return errors.Errorf("unknown parameter block %d", ref)
		}
	}
	held := make([]BlockRef, len(refs))
	copy(held, refs)
	p.residuals = append(p.residuals, residualBlock{cost: cost, loss: loss, refs: held})
	if loss != nil {
		p.ownedLosses[loss] = true
	}
	return nil
}

// SetBlockConstant freezes every parameter of a block.
func (p *Problem) SetBlockConstant(ref BlockRef) error {
	if int(ref) < 0 || int(ref) >= len(p.blocks) {
		return errors.Errorf("unknown parameter block %d", ref)
	}
	p.constant[ref] = true
	return nil
}

// SetSubsetConstant applies a subset parameterization to a block: the listed
// indices are held fixed, the rest stay optimizable. Indices must be unique
// and within the block's bounds.
func (p *Problem) SetSubsetConstant(ref BlockRef, indices []int) error {
	if int(ref) < 0 || int(ref) >= len(p.blocks) {
		return errors.Errorf("unknown parameter block %d", ref)
	}
	if len(indices) == 0 {
		return errors.New("subset parameterization needs at least one constant index")
	}
	blockLen := len(p.blocks[ref])
	seen := make(map[int]bool, len(indices))
	held := make([]int, 0, len(indices))
	for _, idx := range indices {
		if idx < 0 || idx >= blockLen {
			return errors.Errorf("constant index %d out of range for block of size %d", idx, blockLen)
		}
		if seen[idx] {
			return errors.Errorf("constant index %d listed twice", idx)
		}
		seen[idx] = true
		held = append(held, idx)
	}
	sort.Ints(held)
	p.subsets[ref] = held
	return nil
}

// NumParameterBlocks returns the number of registered parameter blocks.
func (p *Problem) NumParameterBlocks() int {
	return len(p.blocks)
}

// NumResidualBlocks returns the number of registered residual terms.
func (p *Problem) NumResidualBlocks() int {
	return len(p.residuals)
}

// OwnsLoss reports whether ownership of the loss transferred to the problem
// by being attached to at least one residual block.
func (p *Problem) OwnsLoss(loss Loss) bool {
	return loss != nil && p.ownedLosses[loss]
}

// numResiduals is the total scalar residual dimension.
func (p *Problem) numResiduals() int {
	n := 0
	for _, rb := range p.residuals {
		n += rb.cost.NumResiduals()
	}
	return n
}
