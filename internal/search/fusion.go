package search

import (
	"sort"

	"github.com/hyperjump/lumi/internal/models"
)

// Weights are the fusion weights for the lexical and vector sources.
type Weights struct {
	Lexical float64
	Vector  float64
}

// DefaultWeights weighs both sources equally.
var DefaultWeights = Weights{Lexical: 0.5, Vector: 0.5}

// Normalized returns the weights scaled to sum to 1. Negative weights count as 0 and
// an all-zero pair falls back to DefaultWeights.
func (w Weights) Normalized() Weights {
	if w.Lexical < 0 {
		w.Lexical = 0
	}
	if w.Vector < 0 {
		w.Vector = 0
	}
	sum := w.Lexical + w.Vector
	if sum == 0 {
		return DefaultWeights
	}
	return Weights{Lexical: w.Lexical / sum, Vector: w.Vector / sum}
}

// Normalize min-max scales the scores of docs to [0,1] keyed by document ID. When every
// score is equal, including the single-document case, each maps to 1. Only the first
// occurrence of a duplicate ID is used.
func Normalize(docs []*models.ScoredDocument) map[string]float64 {
	out := make(map[string]float64, len(docs))
	if len(docs) == 0 {
		return out
	}
	lo, hi := docs[0].Score, docs[0].Score
	for _, d := range docs[1:] {
		if d.Score < lo {
			lo = d.Score
		}
		if d.Score > hi {
			hi = d.Score
		}
	}
	for _, d := range docs {
		if _, ok := out[d.Document.ID]; ok {
			continue
		}
		if hi == lo {
			out[d.Document.ID] = 1
			continue
		}
		out[d.Document.ID] = (d.Score - lo) / (hi - lo)
	}
	return out
}

// Fuse merges the two rankings into one. Each list is normalized independently, a document
// absent from a list contributes 0 for that side, and the fused score is the weighted sum.
// Results are ordered by fused score, then best source rank, then ID, and truncated to topK
// (topK <= 0 keeps everything). Fuse is deterministic and has no side effects.
func Fuse(lexical, vec []*models.ScoredDocument, w Weights, topK int) []*models.FusedDocument {
	w = w.Normalized()
	byID := make(map[string]*models.FusedDocument, len(lexical)+len(vec))

	lexNorm := Normalize(lexical)
	for i, d := range lexical {
		if _, ok := byID[d.Document.ID]; ok {
			continue
		}
		byID[d.Document.ID] = &models.FusedDocument{
			Document:     d.Document,
			LexicalScore: lexNorm[d.Document.ID],
			LexicalRank:  rankOf(d, i),
		}
	}
	vecNorm := Normalize(vec)
	for i, d := range vec {
		f, ok := byID[d.Document.ID]
		if !ok {
			f = &models.FusedDocument{Document: d.Document}
			byID[d.Document.ID] = f
		}
		if f.VectorRank != 0 {
			continue
		}
		f.VectorScore = vecNorm[d.Document.ID]
		f.VectorRank = rankOf(d, i)
	}

	out := make([]*models.FusedDocument, 0, len(byID))
	for _, f := range byID {
		f.Score = w.Lexical*f.LexicalScore + w.Vector*f.VectorScore
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if ra, rb := a.BestRank(), b.BestRank(); ra != rb {
			return ra < rb
		}
		return a.Document.ID < b.Document.ID
	})
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out
}

// rankOf falls back to the list position when a source left Rank unset.
func rankOf(d *models.ScoredDocument, pos int) int {
	if d.Rank > 0 {
		return d.Rank
	}
	return pos + 1
}
