package turn

// DefaultSummarizeAt is the accumulated content length (in bytes, not tokens)
// at which a room's history gets compressed into the rolling summary.
const DefaultSummarizeAt = 10000

// Policy decides whether a room's accumulated size warrants summarization.
// Pluggable so the byte heuristic can be swapped for a token-aware estimator
// without touching the pipeline's step structure.
type Policy interface {
	ShouldSummarize(size int64) bool
}

// ThresholdPolicy triggers once the size reaches a fixed threshold.
type ThresholdPolicy struct {
	Threshold int64
}

func (p ThresholdPolicy) ShouldSummarize(size int64) bool {
	return size >= p.Threshold
}
