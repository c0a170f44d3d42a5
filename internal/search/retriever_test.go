package search

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/lumi/internal/models"
)

type fakeSource struct {
	name  string
	docs  []*models.ScoredDocument
	err   error
	delay time.Duration
	block bool
	calls atomic.Int32
	gotK  atomic.Int32
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Query(ctx context.Context, text string, k int) ([]*models.ScoredDocument, error) {
	f.calls.Add(1)
	f.gotK.Store(int32(k))
	if f.block {
		// Ignores ctx on purpose to check the retriever enforces the timeout itself.
		time.Sleep(time.Second)
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.docs, nil
}

func TestRetriever_BothSourcesFused(t *testing.T) {
	lex := &fakeSource{name: "lexical", docs: scored("D1", 0.9, "D2", 0.4)}
	vec := &fakeSource{name: "vector", docs: scored("D2", 0.8, "D3", 0.5)}
	r := NewRetriever(lex, vec, Config{PerSourceTopK: 7, TopK: 10})

	res, err := r.Query(context.Background(), "q")
	require.NoError(t, err)
	assert.False(t, res.Degraded)
	assert.Equal(t, []string{models.SourceLexical, models.SourceVector}, res.Sources)
	assert.Equal(t, []string{"D1", "D2", "D3"}, ids(res.Documents))
	assert.EqualValues(t, 7, lex.gotK.Load())
	assert.EqualValues(t, 7, vec.gotK.Load())
}

func TestRetriever_TruncatesToTopK(t *testing.T) {
	lex := &fakeSource{name: "lexical", docs: scored("a", 5.0, "b", 4.0, "c", 3.0)}
	vec := &fakeSource{name: "vector", docs: scored("d", 0.9, "e", 0.8, "f", 0.7)}
	r := NewRetriever(lex, vec, Config{PerSourceTopK: 3, TopK: 4})

	res, err := r.Query(context.Background(), "q")
	require.NoError(t, err)
	assert.Len(t, res.Documents, 4)
}

func TestRetriever_CapsOversizedSourceResults(t *testing.T) {
	lex := &fakeSource{name: "lexical", docs: scored("a", 5.0, "b", 4.0, "c", 3.0)}
	vec := &fakeSource{name: "vector", docs: scored()}
	r := NewRetriever(lex, vec, Config{PerSourceTopK: 2, TopK: 10})

	res, err := r.Query(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids(res.Documents))
}

func TestRetriever_DegradedWhenOneSourceFails(t *testing.T) {
	tests := []struct {
		name        string
		lexErr      error
		vecErr      error
		wantSources []string
		wantOrder   []string
	}{
		{
			name:        "lexical down",
			lexErr:      fmt.Errorf("%w: empty", models.ErrIndexUnavailable),
			wantSources: []string{models.SourceVector},
			wantOrder:   []string{"v1", "v2"},
		},
		{
			name:        "vector down with plain error",
			vecErr:      errors.New("connection refused"),
			wantSources: []string{models.SourceLexical},
			wantOrder:   []string{"l1", "l2"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lex := &fakeSource{name: "lexical", docs: scored("l1", 2.0, "l2", 1.0), err: tt.lexErr}
			vec := &fakeSource{name: "vector", docs: scored("v1", 0.9, "v2", 0.3), err: tt.vecErr}
			r := NewRetriever(lex, vec, Config{})

			res, err := r.Query(context.Background(), "q")
			require.NoError(t, err)
			assert.True(t, res.Degraded)
			assert.Equal(t, tt.wantSources, res.Sources)
			assert.Equal(t, tt.wantOrder, ids(res.Documents))
		})
	}
}

func TestRetriever_BothDownIsRetrievalUnavailable(t *testing.T) {
	lex := &fakeSource{name: "lexical", err: fmt.Errorf("%w: empty", models.ErrIndexUnavailable)}
	vec := &fakeSource{name: "vector", err: errors.New("timeout")}
	r := NewRetriever(lex, vec, Config{})

	res, err := r.Query(context.Background(), "q")
	assert.Nil(t, res)
	assert.ErrorIs(t, err, models.ErrRetrievalUnavailable)
}

func TestRetriever_NilSourcesUnavailable(t *testing.T) {
	r := NewRetriever(nil, nil, Config{})
	_, err := r.Query(context.Background(), "q")
	assert.ErrorIs(t, err, models.ErrRetrievalUnavailable)
}

func TestRetriever_EmptyIsNotAnError(t *testing.T) {
	lex := &fakeSource{name: "lexical", docs: scored()}
	vec := &fakeSource{name: "vector", docs: nil}
	r := NewRetriever(lex, vec, Config{})

	res, err := r.Query(context.Background(), "q")
	require.NoError(t, err)
	assert.False(t, res.Degraded)
	assert.Equal(t, 0, res.Len())
}

func TestRetriever_TimeoutDegradesSlowSource(t *testing.T) {
	lex := &fakeSource{name: "lexical", docs: scored("l1", 1.0), block: true}
	vec := &fakeSource{name: "vector", docs: scored("v1", 0.5)}
	r := NewRetriever(lex, vec, Config{QueryTimeout: 50 * time.Millisecond})

	start := time.Now()
	res, err := r.Query(context.Background(), "q")
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 500*time.Millisecond, "retriever must not wait for a source past its timeout")
	assert.True(t, res.Degraded)
	assert.Equal(t, []string{"v1"}, ids(res.Documents))
}

func TestRetriever_QueriesSourcesConcurrently(t *testing.T) {
	lex := &fakeSource{name: "lexical", docs: scored("l1", 1.0), delay: 150 * time.Millisecond}
	vec := &fakeSource{name: "vector", docs: scored("v1", 1.0), delay: 150 * time.Millisecond}
	r := NewRetriever(lex, vec, Config{QueryTimeout: time.Second})

	start := time.Now()
	_, err := r.Query(context.Background(), "q")
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 280*time.Millisecond)
}

func TestRetriever_CallerCancellation(t *testing.T) {
	lex := &fakeSource{name: "lexical", delay: time.Second}
	vec := &fakeSource{name: "vector", delay: time.Second}
	r := NewRetriever(lex, vec, Config{QueryTimeout: 5 * time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := r.Query(ctx, "q")
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, models.ErrRetrievalUnavailable)
}

func TestRetriever_MinScoreFilter(t *testing.T) {
	lex := &fakeSource{name: "lexical", docs: scored("a", 1.0, "b", 0.0)}
	vec := &fakeSource{name: "vector", docs: scored()}
	r := NewRetriever(lex, vec, Config{MinScore: 0.1})

	res, err := r.Query(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids(res.Documents))
}

func TestRetriever_ConcurrentQueries(t *testing.T) {
	lex := &fakeSource{name: "lexical", docs: scored("a", 1.0, "b", 0.5)}
	vec := &fakeSource{name: "vector", docs: scored("b", 0.9, "c", 0.2)}
	r := NewRetriever(lex, vec, Config{})

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := r.Query(context.Background(), "q")
			if err != nil {
				errs <- err
				return
			}
			if res.Len() != 3 {
				errs <- fmt.Errorf("got %d documents", res.Len())
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
	assert.EqualValues(t, 16, lex.calls.Load())
}

func TestNewRetriever_Defaults(t *testing.T) {
	r := NewRetriever(nil, nil, Config{Weights: Weights{Lexical: 1, Vector: 3}})
	cfg := r.Config()
	assert.Equal(t, 10, cfg.PerSourceTopK)
	assert.Equal(t, 5, cfg.TopK)
	assert.Equal(t, 3*time.Second, cfg.QueryTimeout)
	assert.InDelta(t, 0.25, cfg.Weights.Lexical, 1e-9)
	assert.InDelta(t, 0.75, cfg.Weights.Vector, 1e-9)
}
