package models

// Retrieval source names.
const (
	SourceLexical = "lexical"
	SourceVector  = "vector"
)

// ScoredDocument is a Document with a source-specific relevance score (higher is better)
// and its 1-based rank within that source's ranking.
type ScoredDocument struct {
	Document *Document `json:"document"`
	Score    float64   `json:"score"`
	Rank     int       `json:"rank"`
}

// FusedDocument is one entry of a fused ranking. LexicalScore and VectorScore are the
// min-max normalized component scores; a rank of 0 means the document was absent from that source.
type FusedDocument struct {
	Document     *Document `json:"document"`
	Score        float64   `json:"score"`
	LexicalScore float64   `json:"lexical_score"`
	VectorScore  float64   `json:"vector_score"`
	LexicalRank  int       `json:"lexical_rank,omitempty"`
	VectorRank   int       `json:"vector_rank,omitempty"`
}

// BestRank returns the lowest non-zero source rank.
func (f *FusedDocument) BestRank() int {
	switch {
	case f.LexicalRank == 0:
		return f.VectorRank
	case f.VectorRank == 0:
		return f.LexicalRank
	case f.LexicalRank < f.VectorRank:
		return f.LexicalRank
	default:
		return f.VectorRank
	}
}

// FusedResult is the ordered, deduplicated output of hybrid retrieval.
// Degraded is set when one source was unavailable and Sources lists the ones that answered.
// SuggestedQuery is a spelling correction of Query against the lexical vocabulary; it never
// affects Documents.
type FusedResult struct {
	Query          string           `json:"query"`
	Documents      []*FusedDocument `json:"documents"`
	Degraded       bool             `json:"degraded"`
	Sources        []string         `json:"sources"`
	QueryTime      int64            `json:"query_time_ms"`
	SuggestedQuery string           `json:"suggested_query,omitempty"`
}

// Len returns the number of fused documents.
func (r *FusedResult) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Documents)
}
