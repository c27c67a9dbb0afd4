package knowledge

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/aihub/search-go/internal/errors"
)

func TestNewChunker_InvalidConfig(t *testing.T) {
	// chunk大小必须为正
	_, err := NewChunker(0, 0)
	assert.Error(t, err)

	_, err = NewChunker(-10, 0)
	assert.Error(t, err)

	// overlap必须小于chunk大小
	_, err = NewChunker(100, 100)
	assert.Error(t, err)

	_, err = NewChunker(100, -1)
	assert.Error(t, err)

	chunker, err := NewChunker(100, 0)
	require.NoError(t, err)
	assert.NotNil(t, chunker)
}

func TestChunker_Split_ShortText(t *testing.T) {
	chunker, err := NewChunker(300, 50)
	require.NoError(t, err)

	chunks, err := chunker.Split("The sky is blue. Water is wet.")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, "The sky is blue. Water is wet.", chunks[0].Text)
}

func TestChunker_Split_SlidingWindow(t *testing.T) {
	chunker, err := NewChunker(300, 50)
	require.NoError(t, err)

	// 620字符文本，步长250：窗口起点为0、250、500
	text := strings.Repeat("a", 620)
	chunks, err := chunker.Split(text)
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	assert.Equal(t, 300, len([]rune(chunks[0].Text)))
	assert.Equal(t, 300, len([]rune(chunks[1].Text)))
	assert.Equal(t, 120, len([]rune(chunks[2].Text)))

	for i, chunk := range chunks {
		assert.Equal(t, i, chunk.Index)
	}
}

func TestChunker_Split_Overlap(t *testing.T) {
	chunker, err := NewChunker(10, 4)
	require.NoError(t, err)

	// 步长6，相邻chunk共享4个字符
	text := "0123456789abcdefghij"
	chunks, err := chunker.Split(text)
	require.NoError(t, err)
	require.True(t, len(chunks) >= 2)

	first := []rune(chunks[0].Text)
	second := []rune(chunks[1].Text)
	assert.Equal(t, string(first[6:]), string(second[:4]))
}

func TestChunker_Split_Deterministic(t *testing.T) {
	chunker, err := NewChunker(300, 50)
	require.NoError(t, err)

	text := strings.Repeat("hello world ", 100)
	first, err := chunker.Split(text)
	require.NoError(t, err)
	second, err := chunker.Split(text)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestChunker_Split_EmptyContent(t *testing.T) {
	chunker, err := NewChunker(300, 50)
	require.NoError(t, err)

	for _, text := range []string{"", "   ", "\n\t  \r\n"} {
		_, err := chunker.Split(text)
		require.Error(t, err)
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeEmptyContent))
	}
}

func TestChunker_Split_Unicode(t *testing.T) {
	chunker, err := NewChunker(5, 0)
	require.NoError(t, err)

	// 窗口按rune计数，多字节字符不会被截断
	text := "你好世界这是一段中文文本"
	chunks, err := chunker.Split(text)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, "你好世界这", chunks[0].Text)
	assert.Equal(t, "是一段中文", chunks[1].Text)
	assert.Equal(t, "文本", chunks[2].Text)
}

func TestNormalizeWhitespace(t *testing.T) {
	assert.Equal(t, "a b c", normalizeWhitespace("  a \t b\n\nc  "))
	assert.Equal(t, "", normalizeWhitespace(" \n\t "))
	assert.Equal(t, "hello", normalizeWhitespace("hello"))
}
