package knowledge

import (
	"context"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashEmbedder_Deterministic(t *testing.T) {
	embedder := NewHashEmbedder(384)
	ctx := context.Background()

	first, err := embedder.Embed(ctx, "hello world")
	require.NoError(t, err)
	second, err := embedder.Embed(ctx, "hello world")
	require.NoError(t, err)

	// 相同文本必然得到相同向量
	assert.Equal(t, first, second)

	other, err := embedder.Embed(ctx, "another text")
	require.NoError(t, err)
	assert.NotEqual(t, first, other)
}

func TestHashEmbedder_Dimensions(t *testing.T) {
	embedder := NewHashEmbedder(128)
	assert.Equal(t, 128, embedder.Dimensions())
	assert.True(t, embedder.Ready())

	vec, err := embedder.Embed(context.Background(), "some text")
	require.NoError(t, err)
	assert.Len(t, vec, 128)

	// 维度参数非法时回退默认值
	fallback := NewHashEmbedder(0)
	assert.Equal(t, 384, fallback.Dimensions())
}

func TestHashEmbedder_UnitNorm(t *testing.T) {
	embedder := NewHashEmbedder(384)
	vec, err := embedder.Embed(context.Background(), "normalize me")
	require.NoError(t, err)

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)
}

func TestHashEmbedder_EmptyText(t *testing.T) {
	embedder := NewHashEmbedder(384)
	_, err := embedder.Embed(context.Background(), "   ")
	assert.Error(t, err)
}

func TestHashEmbedder_EmbedBatch(t *testing.T) {
	embedder := NewHashEmbedder(64)
	ctx := context.Background()

	vectors, err := embedder.EmbedBatch(ctx, []string{"one", "two", "three"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)

	single, err := embedder.Embed(ctx, "two")
	require.NoError(t, err)
	assert.Equal(t, single, vectors[1])
}

func TestLazyEmbedder_ConstructsOnce(t *testing.T) {
	var constructed int
	lazy := NewLazyEmbedder(func() Embedder {
		constructed++
		return NewHashEmbedder(64)
	})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = lazy.Embed(context.Background(), "concurrent")
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, constructed)
	assert.Equal(t, 64, lazy.Dimensions())
}

func TestLazyEmbedder_NilFactoryResult(t *testing.T) {
	lazy := NewLazyEmbedder(func() Embedder { return nil })
	assert.False(t, lazy.Ready())

	_, err := lazy.Embed(context.Background(), "text")
	assert.Error(t, err)
}

func TestOpenAIEmbedder_EmptyKeyFallsBackToNoop(t *testing.T) {
	embedder := NewOpenAIEmbedder("", "text-embedding-3-small")
	assert.False(t, embedder.Ready())

	_, err := embedder.Embed(context.Background(), "text")
	assert.Error(t, err)
}
