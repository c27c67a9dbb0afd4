package knowledge

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/aihub/search-go/internal/errors"
)

func newTestTavilyClient(t *testing.T, handler http.HandlerFunc) (*TavilyClient, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, ok := NewTavilyClient("test-key", 3, "basic").(*TavilyClient)
	require.True(t, ok)
	client.SetBaseURL(server.URL)
	return client, server
}

func TestNewTavilyClient_EmptyKeyFallsBackToNoop(t *testing.T) {
	client := NewTavilyClient("", 3, "basic")
	assert.False(t, client.Ready())

	results, err := client.Search(context.Background(), "anything")
	assert.NoError(t, err)
	assert.Empty(t, results)
}

func TestTavilyClient_Search(t *testing.T) {
	client, _ := newTestTavilyClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"results":[
			{"title":"First","url":"https://example.com/1","content":"first snippet","score":0.9},
			{"title":"Second","url":"https://example.com/2","content":"second snippet","score":0.5}
		]}`))
	})

	results, err := client.Search(context.Background(), "golang testing")
	require.NoError(t, err)
	require.Len(t, results, 2)

	// 结果保持提供方返回顺序
	assert.Equal(t, "First", results[0].Title)
	assert.Equal(t, "https://example.com/1", results[0].URL)
	assert.Equal(t, "first snippet", results[0].Content)
	assert.Equal(t, "Second", results[1].Title)
}

func TestTavilyClient_Search_APIError(t *testing.T) {
	client, _ := newTestTavilyClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"detail":{"error":"rate limit exceeded"}}`))
	})

	_, err := client.Search(context.Background(), "golang")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeWebSearchUnavailable))
	assert.Contains(t, err.Error(), "rate limit exceeded")
}

func TestTavilyClient_Search_NetworkFailure(t *testing.T) {
	client, server := newTestTavilyClient(t, func(w http.ResponseWriter, r *http.Request) {})
	server.Close()

	_, err := client.Search(context.Background(), "golang")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeWebSearchUnavailable))
}

func TestTavilyClient_Search_MalformedResponse(t *testing.T) {
	client, _ := newTestTavilyClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	})

	_, err := client.Search(context.Background(), "golang")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeWebSearchUnavailable))
}

func TestTavilyClient_Search_EmptyQuery(t *testing.T) {
	client, _ := newTestTavilyClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("不应发起请求")
	})

	results, err := client.Search(context.Background(), "   ")
	assert.NoError(t, err)
	assert.Empty(t, results)
}
