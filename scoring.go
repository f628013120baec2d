package cinefusion

// Scorer computes the popularity weight that orders suggestions.
type Scorer interface {
	Score(r Record) float64
}

// ScorerFunc adapts a plain function to Scorer.
type ScorerFunc func(r Record) float64

func (fn ScorerFunc) Score(r Record) float64 {
	return fn(r)
}

// PopularityScorer weighs a title by votes times rating. It is the default.
var PopularityScorer Scorer = ScorerFunc(func(r Record) float64 {
	return float64(r.Votes) * r.Rating
})

// VotesScorer ranks by vote count alone.
var VotesScorer Scorer = ScorerFunc(func(r Record) float64 {
	return float64(r.Votes)
})
