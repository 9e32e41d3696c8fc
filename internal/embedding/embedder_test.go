package embedding

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEmbeddingsAPI serves /embeddings with a deterministic 3-dim vector per
// input and returns the items in reverse order.
func fakeEmbeddingsAPI(t *testing.T, failFirst int32) (*httptest.Server, *[][]string) {
	t.Helper()
	var calls int32
	var inputs [][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) <= failFirst {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit"}}`))
			return
		}
		var body struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		inputs = append(inputs, body.Input)

		type item struct {
			Object    string    `json:"object"`
			Index     int       `json:"index"`
			Embedding []float64 `json:"embedding"`
		}
		data := make([]item, 0, len(body.Input))
		for i := len(body.Input) - 1; i >= 0; i-- {
			data = append(data, item{Object: "embedding", Index: i, Embedding: []float64{float64(len(body.Input[i])), 0, 3}})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  body.Model,
			"usage":  map[string]int{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &inputs
}

func newTestEmbedder(t *testing.T, url string, batch int) *Embedder {
	t.Helper()
	client, err := NewClient(ClientOptions{BaseURL: url, APIKey: "test"})
	require.NoError(t, err)
	return NewEmbedder(client, Options{BatchSize: batch})
}

func TestGenerateEmbeddings_BatchesAndNormalizes(t *testing.T) {
	srv, inputs := fakeEmbeddingsAPI(t, 0)
	e := newTestEmbedder(t, srv.URL, 2)

	vecs, err := e.GenerateEmbeddings(context.Background(), []string{"abcd", "", "a", "abcdefgh", "ab"})
	require.NoError(t, err)
	require.Len(t, vecs, 5)
	assert.Len(t, *inputs, 3, "five texts in batches of two")
	assert.Equal(t, " ", (*inputs)[0][1], "empty text is sent as a single space")

	for i, v := range vecs {
		assert.InDelta(t, 1.0, norm(v), 1e-5, "vector %d", i)
	}
	// Order follows input, not response order: first component is len(text).
	assert.InDelta(t, 4/5.0, vecs[0][0], 1e-6)
	assert.InDelta(t, 8/math.Sqrt(73), vecs[3][0], 1e-6)
}

func TestGenerateEmbeddings_RetriesRateLimit(t *testing.T) {
	srv, _ := fakeEmbeddingsAPI(t, 1)
	client, err := NewClient(ClientOptions{BaseURL: srv.URL, APIKey: "test"})
	require.NoError(t, err)
	e := NewEmbedder(client, Options{})

	vecs, err := e.GenerateEmbeddings(context.Background(), []string{"query"})
	require.NoError(t, err)
	assert.Len(t, vecs, 1)
}

func TestNewClient_RequiresKeyWithoutBaseURL(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, err := NewClient(ClientOptions{})
	assert.Error(t, err)

	_, err = NewClient(ClientOptions{BaseURL: "http://localhost:9999/v1"})
	assert.NoError(t, err)
}

func TestNormalize(t *testing.T) {
	v := Normalize([]float32{3, 4})
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)

	zero := Normalize([]float32{0, 0})
	assert.Equal(t, []float32{0, 0}, zero)
}

func norm(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}
