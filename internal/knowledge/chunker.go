package knowledge

import (
	"fmt"
	"strings"
	"unicode"

	apperrors "github.com/aihub/search-go/internal/errors"
)

// Chunk 表示分块后的文本结构
type Chunk struct {
	Index int
	Text  string
}

// Chunker 文本分块器，按固定窗口大小滑动切分
type Chunker struct {
	chunkSize    int
	chunkOverlap int
}

// NewChunker 创建分块器，overlap必须满足 0 <= overlap < chunkSize
func NewChunker(chunkSize, overlap int) (*Chunker, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	if overlap < 0 || overlap >= chunkSize {
		return nil, fmt.Errorf("chunk overlap must satisfy 0 <= overlap < chunk size, got overlap=%d size=%d", overlap, chunkSize)
	}
	return &Chunker{
		chunkSize:    chunkSize,
		chunkOverlap: overlap,
	}, nil
}

// Split 将文本切分为多个chunk，窗口步长为 chunkSize - overlap。
// 相同文本与相同参数切分结果完全一致。空白文本返回EMPTY_CONTENT错误。
func (c *Chunker) Split(text string) ([]Chunk, error) {
	clean := normalizeWhitespace(text)
	if clean == "" {
		return nil, apperrors.NewEmptyContentError("")
	}

	runes := []rune(clean)
	step := c.chunkSize - c.chunkOverlap

	var chunks []Chunk
	for start := 0; start < len(runes); start += step {
		end := start + c.chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunkText := strings.TrimSpace(string(runes[start:end]))
		if chunkText != "" {
			chunks = append(chunks, Chunk{
				Index: len(chunks),
				Text:  chunkText,
			})
		}

		if end == len(runes) {
			break
		}
	}

	if len(chunks) == 0 {
		return nil, apperrors.NewEmptyContentError("")
	}
	return chunks, nil
}

// normalizeWhitespace 折叠连续空白为单个空格并去除首尾空白
func normalizeWhitespace(s string) string {
	var builder strings.Builder
	builder.Grow(len(s))

	var prevSpace bool
	for _, r := range s {
		if unicode.IsSpace(r) {
			if prevSpace {
				continue
			}
			builder.WriteRune(' ')
			prevSpace = true
			continue
		}
		builder.WriteRune(r)
		prevSpace = false
	}

	return strings.TrimSpace(builder.String())
}
