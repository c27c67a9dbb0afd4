package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// ElasticsearchIndexer 基于ES的全文索引
type ElasticsearchIndexer struct {
	client    *elasticsearch.Client
	index     string
	indexOnce sync.Once
	indexErr  error
}

// NewElasticsearchIndexer 创建ES索引器，未配置地址时返回占位实现
func NewElasticsearchIndexer(addresses []string, username, password, apiKey, indexPrefix string) (FulltextIndexer, error) {
	if len(addresses) == 0 {
		return &NoopFulltextIndexer{}, nil
	}

	cfg := elasticsearch.Config{
		Addresses: addresses,
		Username:  username,
		Password:  password,
		APIKey:    apiKey,
	}
	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, err
	}

	if indexPrefix == "" {
		indexPrefix = "rag_chunks"
	}

	return &ElasticsearchIndexer{
		client: client,
		index:  indexPrefix,
	}, nil
}

func (e *ElasticsearchIndexer) ensureIndex(ctx context.Context) error {
	e.indexOnce.Do(func() {
		req := esapi.IndicesExistsRequest{
			Index: []string{e.index},
		}
		resp, err := req.Do(ctx, e.client)
		if err != nil {
			e.indexErr = err
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode == 200 {
			return
		}

		mapping := map[string]interface{}{
			"mappings": map[string]interface{}{
				"properties": map[string]interface{}{
					"document_id": map[string]interface{}{"type": "keyword"},
					"chunk_id":    map[string]interface{}{"type": "keyword"},
					"sequence_index": map[string]interface{}{
						"type": "integer",
					},
					"content": map[string]interface{}{
						"type":          "text",
						"index_options": "offsets",
					},
					"created_at": map[string]interface{}{"type": "date"},
				},
			},
		}

		body, _ := json.Marshal(mapping)
		createReq := esapi.IndicesCreateRequest{
			Index: e.index,
			Body:  bytes.NewReader(body),
		}
		createResp, err := createReq.Do(ctx, e.client)
		if err != nil {
			e.indexErr = err
			return
		}
		defer createResp.Body.Close()

		if createResp.IsError() {
			e.indexErr = fmt.Errorf("create index error: %s", createResp.String())
		}
	})
	return e.indexErr
}

func (e *ElasticsearchIndexer) IndexChunk(ctx context.Context, chunk FulltextChunk) error {
	if e.client == nil {
		return nil
	}
	if err := e.ensureIndex(ctx); err != nil {
		return err
	}

	doc := map[string]interface{}{
		"chunk_id":       chunk.ChunkID,
		"document_id":    chunk.DocumentID,
		"content":        chunk.Content,
		"sequence_index": chunk.SequenceIndex,
		"created_at":     chunk.CreatedAt,
	}

	payload, _ := json.Marshal(doc)
	req := esapi.IndexRequest{
		Index:      e.index,
		DocumentID: chunk.ChunkID,
		Body:       bytes.NewReader(payload),
		Refresh:    "true",
	}

	resp, err := req.Do(ctx, e.client)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.IsError() {
		return fmt.Errorf("index chunk error: %s", resp.String())
	}
	return nil
}

func (e *ElasticsearchIndexer) RemoveDocument(ctx context.Context, documentID string) error {
	if e.client == nil {
		return nil
	}

	query := map[string]interface{}{
		"query": map[string]interface{}{
			"term": map[string]interface{}{
				"document_id": documentID,
			},
		},
	}

	body, _ := json.Marshal(query)
	req := esapi.DeleteByQueryRequest{
		Index: []string{e.index},
		Body:  bytes.NewReader(body),
	}

	resp, err := req.Do(ctx, e.client)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.IsError() {
		return fmt.Errorf("delete document error: %s", resp.String())
	}
	return nil
}

func (e *ElasticsearchIndexer) Search(ctx context.Context, req FulltextSearchRequest) ([]FulltextMatch, error) {
	if e.client == nil {
		return nil, nil
	}
	if req.Limit == 0 {
		req.Limit = 10
	}
	if err := e.ensureIndex(ctx); err != nil {
		return nil, err
	}

	// 优先短语匹配，模糊匹配兜底
	body := map[string]interface{}{
		"size": req.Limit,
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"should": []interface{}{
					map[string]interface{}{
						"match_phrase": map[string]interface{}{
							"content": map[string]interface{}{
								"query": req.Query,
								"boost": 3.0,
							},
						},
					},
					map[string]interface{}{
						"match": map[string]interface{}{
							"content": map[string]interface{}{
								"query":                req.Query,
								"operator":             "and",
								"minimum_should_match": "70%",
								"boost":                1.0,
							},
						},
					},
				},
				"minimum_should_match": 1,
			},
		},
		"highlight": map[string]interface{}{
			"fields": map[string]interface{}{
				"content": map[string]interface{}{
					"fragment_size":       150,
					"number_of_fragments": 1,
					"pre_tags":            []string{"<mark>"},
					"post_tags":           []string{"</mark>"},
				},
			},
		},
	}

	payload, _ := json.Marshal(body)
	searchReq := esapi.SearchRequest{
		Index: []string{e.index},
		Body:  bytes.NewReader(payload),
	}

	resp, err := searchReq.Do(ctx, e.client)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.IsError() {
		return nil, fmt.Errorf("search error: %s", resp.String())
	}

	var result struct {
		Hits struct {
			Hits []struct {
				ID     string  `json:"_id"`
				Score  float64 `json:"_score"`
				Source struct {
					DocumentID    string `json:"document_id"`
					Content       string `json:"content"`
					SequenceIndex int    `json:"sequence_index"`
				} `json:"_source"`
				Highlight map[string][]string `json:"highlight"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	matches := make([]FulltextMatch, 0, len(result.Hits.Hits))
	for _, hit := range result.Hits.Hits {
		match := FulltextMatch{
			ChunkID:    hit.ID,
			DocumentID: hit.Source.DocumentID,
			Content:    hit.Source.Content,
			Score:      hit.Score,
		}
		if fragments, ok := hit.Highlight["content"]; ok && len(fragments) > 0 {
			match.Highlight = fragments[0]
		}
		matches = append(matches, match)
	}
	return matches, nil
}

func (e *ElasticsearchIndexer) Ready() bool {
	if e.client == nil {
		return false
	}
	resp, err := e.client.Ping()
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return !resp.IsError()
}
