package kawase

import "fmt"

// Parameter bounds. Iterations controls the pyramid depth (and with it
// the blur radius, which roughly doubles per iteration); Offset scales
// the sampling pattern within each pass.
const (
	MinIterations = 1
	MaxIterations = 5

	MinOffset = 1.0
	MaxOffset = 5.0
)

// Params are the blur parameters shared by the blocking and streaming
// paths.
type Params struct {
	// Iterations is the number of downsample/upsample iterations,
	// in [MinIterations, MaxIterations]. The pyramid holds
	// Iterations+1 levels and a blur issues 2*Iterations passes.
	Iterations int

	// Offset scales the per-pass sampling pattern, in
	// [MinOffset, MaxOffset]. Larger values widen the blur at equal
	// cost, at the price of visible undersampling artifacts past ~5.
	Offset float32
}

// Validate checks both fields against their bounds. All errors wrap
// ErrParameter.
func (p Params) Validate() error {
	if p.Iterations < MinIterations || p.Iterations > MaxIterations {
		return fmt.Errorf("%w: iterations %d outside [%d, %d]",
			ErrParameter, p.Iterations, MinIterations, MaxIterations)
	}
	if p.Offset < MinOffset || p.Offset > MaxOffset {
		return fmt.Errorf("%w: offset %g outside [%g, %g]",
			ErrParameter, p.Offset, float64(MinOffset), float64(MaxOffset))
	}
	return nil
}
