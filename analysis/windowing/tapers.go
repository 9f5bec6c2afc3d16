package windowing

import (
	"fmt"
	"math"

	"github.com/scopelab/tracedsp/analysis/common"
)

// SineTapers generates K orthonormal sine tapers of length size
// (Riedel-Sidorenko). They are the closed-form members of the DPSS family:
// mutually orthogonal, unit-energy, with spectral concentration close to
// true Slepian sequences, and cost nothing to build per segment length.
//
//	v_k[n] = sqrt(2/(N+1)) * sin(pi*(k+1)*(n+1)/(N+1))
func SineTapers(size, k int) ([][]float64, error) {
	if size <= 0 {
		return nil, fmt.Errorf("taper length must be positive, got %d: %w", size, common.ErrInvalidArgument)
	}
	if k <= 0 {
		return nil, fmt.Errorf("taper count must be positive, got %d: %w", k, common.ErrInvalidArgument)
	}
	if k > size {
		k = size
	}

	norm := math.Sqrt(2.0 / float64(size+1))
	tapers := make([][]float64, k)
	for t := range tapers {
		taper := make([]float64, size)
		for n := range taper {
			taper[n] = norm * math.Sin(math.Pi*float64(t+1)*float64(n+1)/float64(size+1))
		}
		tapers[t] = taper
	}

	return tapers, nil
}
