package spc

import (
	"errors"
	"fmt"
)

var ErrUnsupportedSubgroupSize = errors.New("unsupported subgroup size")

type UnsupportedSubgroupSizeError struct {
	Size int
}

func (e *UnsupportedSubgroupSizeError) Error() string {
	return fmt.Sprintf("unsupported subgroup size %d: supported sizes are 1 and %d-%d", e.Size, MinSubgroupSize, MaxSubgroupSize)
}

func (e *UnsupportedSubgroupSizeError) Is(target error) bool {
	return target == ErrUnsupportedSubgroupSize
}

const (
	MinSubgroupSize = 2
	MaxSubgroupSize = 10
)

type Factors struct {
	A2 float64
	D3 float64
	D4 float64
	B3 float64
	B4 float64
	D2 float64
}

// factorTable is indexed by subgroup size; entries below MinSubgroupSize are unused.
var factorTable = [MaxSubgroupSize + 1]Factors{
	2:  {A2: 1.880, D3: 0, D4: 3.267, B3: 0, B4: 3.267, D2: 1.128},
	3:  {A2: 1.023, D3: 0, D4: 2.574, B3: 0, B4: 2.568, D2: 1.693},
	4:  {A2: 0.729, D3: 0, D4: 2.282, B3: 0, B4: 2.266, D2: 2.059},
	5:  {A2: 0.577, D3: 0, D4: 2.114, B3: 0, B4: 2.089, D2: 2.326},
	6:  {A2: 0.483, D3: 0, D4: 2.004, B3: 0.030, B4: 1.970, D2: 2.534},
	7:  {A2: 0.419, D3: 0.076, D4: 1.924, B3: 0.118, B4: 1.882, D2: 2.704},
	8:  {A2: 0.373, D3: 0.136, D4: 1.864, B3: 0.185, B4: 1.815, D2: 2.847},
	9:  {A2: 0.337, D3: 0.184, D4: 1.816, B3: 0.239, B4: 1.761, D2: 2.970},
	10: {A2: 0.308, D3: 0.223, D4: 1.777, B3: 0.284, B4: 1.716, D2: 3.078},
}

func FactorsFor(n int) (Factors, error) {
	if n < MinSubgroupSize || n > MaxSubgroupSize {
		return Factors{}, &UnsupportedSubgroupSizeError{Size: n}
	}
	return factorTable[n], nil
}

const MovingRangeD2 = 1.128
