package retrieval

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/rag-query-service/models"
	"go.uber.org/zap"
)

func newTestRetriever(t *testing.T, handler http.HandlerFunc) (*Retriever, *models.TenantConfig) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	r := NewRetriever(Config{
		Scheme:         "http",
		ConnectTimeout: time.Second,
		ReadTimeout:    2 * time.Second,
	}, zap.NewNop())

	cfg := &models.TenantConfig{
		TenantID:  "t1",
		StoreHost: strings.TrimPrefix(server.URL, "http://"),
		IndexName: "docs-t1",
	}
	return r, cfg
}

func writeHits(w http.ResponseWriter, hits ...map[string]interface{}) {
	wrapped := make([]map[string]interface{}, 0, len(hits))
	for _, h := range hits {
		wrapped = append(wrapped, map[string]interface{}{"_source": h})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"hits": map[string]interface{}{"hits": wrapped},
	})
}

func TestRetriever_Search(t *testing.T) {
	var captured struct {
		method string
		path   string
		auth   string
		body   map[string]interface{}
	}

	r, cfg := newTestRetriever(t, func(w http.ResponseWriter, req *http.Request) {
		captured.method = req.Method
		captured.path = req.URL.Path
		captured.auth = req.Header.Get("Authorization")
		_ = json.NewDecoder(req.Body).Decode(&captured.body)

		writeHits(w,
			map[string]interface{}{"body": "Refunds are issued within 30 days.", "tenant_id": "t1"},
			map[string]interface{}{"body": "Contact support for exceptions."},
		)
	})

	text, sources := r.Search(context.Background(), SearchRequest{
		Vector:    []float64{0.1, 0.2},
		Config:    cfg,
		AuthToken: "Bearer abc.def.ghi",
		TenantID:  "t1",
	})

	assert.Equal(t, http.MethodPost, captured.method)
	assert.Equal(t, "/docs-t1/_search", captured.path)
	assert.Equal(t, "Bearer abc.def.ghi", captured.auth)

	assert.Equal(t, float64(5), captured.body["size"])
	nested := captured.body["query"].(map[string]interface{})["nested"].(map[string]interface{})
	assert.Equal(t, "max", nested["score_mode"])
	assert.Equal(t, "embedding", nested["path"])
	knn := nested["query"].(map[string]interface{})["knn"].(map[string]interface{})["embedding.knn"].(map[string]interface{})
	assert.Equal(t, float64(5), knn["k"])
	assert.Equal(t, []interface{}{0.1, 0.2}, knn["vector"])

	assert.Equal(t, "Refunds are issued within 30 days.\n\nContact support for exceptions.\n\n", text)
	require.Len(t, sources, 2)
	assert.Equal(t, models.Source{
		Title:    "Document",
		Snippet:  "Refunds are issued within 30 days....",
		Metadata: models.SourceMetadata{TenantID: "t1"},
	}, sources[0])
	assert.Equal(t, "unknown", sources[1].Metadata.TenantID)
}

func TestRetriever_Search_ExplicitLimit(t *testing.T) {
	var size float64
	r, cfg := newTestRetriever(t, func(w http.ResponseWriter, req *http.Request) {
		var body map[string]interface{}
		_ = json.NewDecoder(req.Body).Decode(&body)
		size = body["size"].(float64)
		writeHits(w)
	})

	text, sources := r.Search(context.Background(), SearchRequest{Vector: []float64{1}, Config: cfg, Limit: 2, TenantID: "t1"})

	assert.Equal(t, float64(2), size)
	assert.Empty(t, text)
	assert.Nil(t, sources)
}

func TestRetriever_Search_DropsOtherTenants(t *testing.T) {
	r, cfg := newTestRetriever(t, func(w http.ResponseWriter, req *http.Request) {
		writeHits(w,
			map[string]interface{}{"body": "mine", "tenant_id": "t1"},
			map[string]interface{}{"body": "theirs", "tenant_id": "t2"},
		)
	})

	text, sources := r.Search(context.Background(), SearchRequest{Vector: []float64{1}, Config: cfg, TenantID: "t1"})

	assert.Equal(t, "mine\n\n", text)
	require.Len(t, sources, 1)
	assert.Equal(t, "t1", sources[0].Metadata.TenantID)
}

func TestRetriever_Search_Degrades(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, req *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
		},
		{
			name: "forbidden",
			handler: func(w http.ResponseWriter, req *http.Request) {
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"error":"no permissions"}`))
			},
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, req *http.Request) {
				_, _ = w.Write([]byte(`{"hits":`))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, cfg := newTestRetriever(t, tt.handler)

			text, sources := r.Search(context.Background(), SearchRequest{Vector: []float64{1}, Config: cfg, TenantID: "t1"})
			assert.Empty(t, text)
			assert.Nil(t, sources)
		})
	}
}

func TestRetriever_Search_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	host := strings.TrimPrefix(server.URL, "http://")
	server.Close()

	r := NewRetriever(Config{Scheme: "http", ConnectTimeout: 500 * time.Millisecond, ReadTimeout: time.Second}, nil)
	text, sources := r.Search(context.Background(), SearchRequest{
		Vector:   []float64{1},
		Config:   &models.TenantConfig{TenantID: "t1", StoreHost: host, IndexName: "docs"},
		TenantID: "t1",
	})

	assert.Empty(t, text)
	assert.Nil(t, sources)
}

func TestRetriever_Search_NilConfig(t *testing.T) {
	r := NewRetriever(Config{}, nil)
	text, sources := r.Search(context.Background(), SearchRequest{Vector: []float64{1}})
	assert.Empty(t, text)
	assert.Nil(t, sources)
}

func TestSnippet(t *testing.T) {
	long := strings.Repeat("a", 250)

	tests := []struct {
		name string
		body string
		n    int
		want string
	}{
		{"empty body", "", 200, ""},
		{"short body", "hello", 200, "hello..."},
		{"cut at limit", long, 200, strings.Repeat("a", 200) + "..."},
		{"multibyte runes stay whole", "ñandú über", 4, "ñand..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Snippet(tt.body, tt.n))
		})
	}
}
