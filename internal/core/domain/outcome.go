package domain

// RetrievalOutcome is the tagged result of running the full retrieval
// pipeline. Semantic non-results are outcomes, never errors: callers refuse
// politely instead of surfacing an exception.
type RetrievalOutcome int

const (
	// RetrievalOK means at least one passage survived filtering and the best
	// similarity cleared the out-of-scope threshold.
	RetrievalOK RetrievalOutcome = iota
	// RetrievalNoResults means the store returned nothing above the
	// similarity threshold.
	RetrievalNoResults
	// RetrievalOutOfScope means results exist but the best similarity is
	// strictly below the out-of-scope threshold.
	RetrievalOutOfScope
)

func (o RetrievalOutcome) String() string {
	switch o {
	case RetrievalOK:
		return "ok"
	case RetrievalNoResults:
		return "no_results"
	case RetrievalOutOfScope:
		return "out_of_scope"
	default:
		return "unknown"
	}
}

// Retrieval is what the pipeline hands to the answering layer.
type Retrieval struct {
	Outcome       RetrievalOutcome
	Passages      []Passage
	MaxSimilarity float64
	// NoiseFilterSkipped is set when removing boilerplate would have emptied
	// the list, so the unfiltered passages were kept instead.
	NoiseFilterSkipped bool
}
