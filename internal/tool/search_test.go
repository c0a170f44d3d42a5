package tool

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/lumi/internal/models"
)

type stubRetriever struct {
	res   *models.FusedResult
	err   error
	calls int
}

func (s *stubRetriever) Query(ctx context.Context, text string) (*models.FusedResult, error) {
	s.calls++
	return s.res, s.err
}

func fused(ids ...string) *models.FusedResult {
	res := &models.FusedResult{}
	for _, id := range ids {
		res.Documents = append(res.Documents, &models.FusedDocument{
			Document: &models.Document{
				ID:       id,
				Title:    "Title " + id,
				Content:  "content of " + id,
				Metadata: map[string]string{models.MetaURL: "https://example.edu/" + id},
			},
		})
	}
	return res
}

func TestParseQuery(t *testing.T) {
	q, err := ParseQuery(`{"query":"  tuition fees "}`)
	require.NoError(t, err)
	assert.Equal(t, "tuition fees", q)

	for _, args := range []string{`{}`, `{"query":"  "}`, `not json`, ``} {
		_, err := ParseQuery(args)
		assert.True(t, errors.Is(err, models.ErrInvalidInput), "args %q", args)
	}
}

func TestSerialize(t *testing.T) {
	out, err := Serialize(fused("a", "b", "c"), 2)
	require.NoError(t, err)

	var passages []Passage
	require.NoError(t, json.Unmarshal([]byte(out), &passages))
	require.Len(t, passages, 2)
	assert.Equal(t, "content of a", passages[0].Text)
	assert.Equal(t, "Title a", passages[0].Metadata["title"])
	assert.Equal(t, "https://example.edu/b", passages[1].Metadata[models.MetaURL])
}

func TestSerialize_Empty(t *testing.T) {
	out, err := Serialize(&models.FusedResult{}, 5)
	require.NoError(t, err)
	assert.Equal(t, "[]", out)

	out, err = Serialize(nil, 5)
	require.NoError(t, err)
	assert.Equal(t, "[]", out)
}

func TestSearch_RunOnceAndPassErrors(t *testing.T) {
	r := &stubRetriever{res: fused("x")}
	s := NewSearch(r, 5)
	res, out, err := s.Run(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Len())
	assert.Contains(t, out, "content of x")
	assert.Equal(t, 1, r.calls)

	r.err = models.ErrRetrievalUnavailable
	_, _, err = s.Run(context.Background(), "x")
	assert.ErrorIs(t, err, models.ErrRetrievalUnavailable)
}

func TestSearch_Definition(t *testing.T) {
	def := NewSearch(&stubRetriever{}, 0).Definition()
	assert.Equal(t, SearchName, def.Name)
	assert.NotEmpty(t, def.Description)
	assert.Equal(t, []string{"query"}, def.Parameters["required"])
}
