package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	apperrors "github.com/aihub/search-go/internal/errors"
)

// WebResult 网络搜索结果
type WebResult struct {
	Title   string
	URL     string
	Content string
	Score   float64
}

// WebSearchClient 网络搜索抽象。搜索失败只允许降级，不得使整个请求失败。
type WebSearchClient interface {
	Search(ctx context.Context, query string) ([]WebResult, error)
	Ready() bool
}

// NoopWebSearchClient 未配置时的占位实现
type NoopWebSearchClient struct{}

func (n *NoopWebSearchClient) Search(ctx context.Context, query string) ([]WebResult, error) {
	return nil, nil
}

func (n *NoopWebSearchClient) Ready() bool {
	return false
}

// TavilyClient Tavily搜索API客户端
type TavilyClient struct {
	apiKey     string
	baseURL    string
	maxResults int
	depth      string
	client     *http.Client
	limiter    sync.Mutex
}

// tavilyRequest Tavily搜索请求
type tavilyRequest struct {
	Query       string `json:"query"`
	MaxResults  int    `json:"max_results"`
	SearchDepth string `json:"search_depth"`
}

// tavilyResponse Tavily搜索响应
type tavilyResponse struct {
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

// tavilyError Tavily API错误
type tavilyError struct {
	Detail struct {
		Error string `json:"error"`
	} `json:"detail"`
}

// NewTavilyClient 创建Tavily搜索客户端，API key为空时返回占位实现
func NewTavilyClient(apiKey string, maxResults int, depth string) WebSearchClient {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return &NoopWebSearchClient{}
	}
	if maxResults <= 0 {
		maxResults = 3
	}
	if depth == "" {
		depth = "basic"
	}

	return &TavilyClient{
		apiKey:     apiKey,
		baseURL:    "https://api.tavily.com",
		maxResults: maxResults,
		depth:      depth,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// SetBaseURL 覆盖API地址
func (s *TavilyClient) SetBaseURL(url string) {
	s.baseURL = strings.TrimRight(url, "/")
}

// Search 执行网络搜索
func (s *TavilyClient) Search(ctx context.Context, query string) ([]WebResult, error) {
	if s == nil || s.client == nil {
		return nil, apperrors.NewWebSearchUnavailableError(fmt.Errorf("tavily client not initialized"))
	}
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}

	s.limiter.Lock()
	defer s.limiter.Unlock()

	jsonData, err := json.Marshal(tavilyRequest{
		Query:       query,
		MaxResults:  s.maxResults,
		SearchDepth: s.depth,
	})
	if err != nil {
		return nil, apperrors.NewWebSearchUnavailableError(fmt.Errorf("序列化请求失败: %w", err))
	}

	url := fmt.Sprintf("%s/search", s.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, apperrors.NewWebSearchUnavailableError(fmt.Errorf("创建请求失败: %w", err))
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", fmt.Sprintf("Bearer %s", s.apiKey))

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, apperrors.NewWebSearchUnavailableError(fmt.Errorf("API调用失败: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.NewWebSearchUnavailableError(fmt.Errorf("读取响应失败: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		var errorResp tavilyError
		if err := json.Unmarshal(body, &errorResp); err == nil && errorResp.Detail.Error != "" {
			return nil, apperrors.NewWebSearchUnavailableError(
				fmt.Errorf("Tavily API错误: %s", errorResp.Detail.Error))
		}
		return nil, apperrors.NewWebSearchUnavailableError(
			fmt.Errorf("Tavily API错误: HTTP %d - %s", resp.StatusCode, string(body)))
	}

	var searchResp tavilyResponse
	if err := json.Unmarshal(body, &searchResp); err != nil {
		return nil, apperrors.NewWebSearchUnavailableError(fmt.Errorf("解析响应失败: %w", err))
	}

	results := make([]WebResult, 0, len(searchResp.Results))
	for _, r := range searchResp.Results {
		results = append(results, WebResult{
			Title:   r.Title,
			URL:     r.URL,
			Content: r.Content,
			Score:   r.Score,
		})
	}
	return results, nil
}

// Ready 检查客户端是否可用
func (s *TavilyClient) Ready() bool {
	return s != nil && s.client != nil && s.apiKey != ""
}
