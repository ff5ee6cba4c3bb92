// Package es 提供了与 Elasticsearch 交互的客户端功能。
// 文档段落的向量与正文都存储在同一个索引中，检索时按文档指纹过滤。
package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"xiaowen-go/internal/config"
	"xiaowen-go/internal/model"
	"xiaowen-go/pkg/log"
)

// Client 封装 Elasticsearch 客户端和索引名。
type Client struct {
	es    *elasticsearch.Client
	index string
}

// NewClient 初始化 Elasticsearch 客户端，并确保段落索引存在。
// dims 为向量维度，必须与嵌入模型的输出一致。
func NewClient(esCfg config.ElasticsearchConfig, dims int) (*Client, error) {
	cfg := elasticsearch.Config{
		Addresses: []string{esCfg.Addresses},
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	c := &Client{es: client, index: esCfg.IndexName}
	if err := c.createIndexIfNotExists(dims); err != nil {
		return nil, err
	}
	return c, nil
}

// createIndexIfNotExists 检查索引是否存在，如果不存在则创建它
func (c *Client) createIndexIfNotExists(dims int) error {
	res, err := c.es.Indices.Exists([]string{c.index})
	if err != nil {
		log.Errorf("检查索引是否存在时出错: %v", err)
		return err
	}
	// 如果 res.StatusCode 是 200，说明索引已存在
	if !res.IsError() && res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", c.index)
		return nil
	}
	// 如果 res.StatusCode 是 404，说明索引不存在，需要创建
	if res.StatusCode != http.StatusNotFound {
		log.Errorf("检查索引 '%s' 是否存在时收到意外的状态码: %d", c.index, res.StatusCode)
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	// 使用 ik 中文分词器，向量维度由嵌入配置决定，相似度为 cosine
	mapping := fmt.Sprintf(`{
		"mappings": {
			"properties": {
				"passage_id": { "type": "keyword" },
				"fingerprint": { "type": "keyword" },
				"ordinal": { "type": "integer" },
				"page_start": { "type": "integer" },
				"page_end": { "type": "integer" },
				"start_offset": { "type": "long" },
				"token_count": { "type": "integer" },
				"overlap_tokens": { "type": "integer" },
				"text_content": {
					"type": "text",
					"analyzer": "ik_max_word",
					"search_analyzer": "ik_smart"
				},
				"vector": {
					"type": "dense_vector",
					"dims": %d,
					"index": true,
					"similarity": "cosine"
				},
				"model_version": { "type": "keyword" }
			}
		}
	}`, dims)

	res, err = c.es.Indices.Create(
		c.index,
		c.es.Indices.Create.WithBody(strings.NewReader(mapping)),
	)
	if err != nil {
		log.Errorf("创建索引 '%s' 失败: %v", c.index, err)
		return err
	}
	if res.IsError() {
		log.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", c.index, res.String())
		return errors.New("创建索引时 Elasticsearch 返回错误")
	}

	log.Infof("索引 '%s' 创建成功 (dims=%d)", c.index, dims)
	return nil
}

// UpsertPassages 以文档为单位写入段落：先删除该指纹下的旧段落，再批量写入新段落。
// 任何一条写入失败都会回滚已写入的段落，保证同一文档的段落要么全部可见、要么全部不可见。
func (c *Client) UpsertPassages(ctx context.Context, fingerprint string, passages []model.EsPassage) error {
	if err := c.DeleteByFingerprint(ctx, fingerprint); err != nil {
		return fmt.Errorf("清理旧段落失败: %w", err)
	}
	if len(passages) == 0 {
		return nil
	}

	var buf bytes.Buffer
	for _, p := range passages {
		meta := map[string]interface{}{
			"index": map[string]interface{}{
				"_index": c.index,
				"_id":    p.PassageID,
			},
		}
		metaBytes, err := json.Marshal(meta)
		if err != nil {
			return err
		}
		docBytes, err := json.Marshal(p)
		if err != nil {
			return err
		}
		buf.Write(metaBytes)
		buf.WriteByte('\n')
		buf.Write(docBytes)
		buf.WriteByte('\n')
	}

	req := esapi.BulkRequest{
		Index:   c.index,
		Body:    bytes.NewReader(buf.Bytes()),
		Refresh: "wait_for",
	}
	res, err := req.Do(ctx, c.es)
	if err != nil {
		return fmt.Errorf("批量写入段落失败: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("批量写入段落到 Elasticsearch 出错: %s", res.String())
		return errors.New("批量写入段落到 Elasticsearch 出错")
	}

	var bulkResp struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			Status int `json:"status"`
			Error  *struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"items"`
	}
	if err := json.NewDecoder(res.Body).Decode(&bulkResp); err != nil {
		return fmt.Errorf("解析批量写入响应失败: %w", err)
	}
	if bulkResp.Errors {
		for _, item := range bulkResp.Items {
			for _, r := range item {
				if r.Error != nil {
					log.Errorf("批量写入条目失败: type=%s, reason=%s", r.Error.Type, r.Error.Reason)
				}
			}
		}
		// 回滚已经写入的部分，避免半成品文档对检索可见
		if rbErr := c.DeleteByFingerprint(ctx, fingerprint); rbErr != nil {
			log.Errorf("回滚段落失败 (fingerprint=%s): %v", fingerprint, rbErr)
		}
		return errors.New("批量写入存在失败条目，已回滚")
	}
	return nil
}

// SearchByVector 在指定文档范围内执行 KNN 向量检索。
// 结果按相似度降序排列，相同分数时按段落序号升序，最多返回 topK 条。
func (c *Client) SearchByVector(ctx context.Context, fingerprint string, queryVector []float32, topK int) ([]model.SearchHit, error) {
	if topK <= 0 {
		return []model.SearchHit{}, nil
	}
	numCandidates := topK * 10
	if numCandidates < 100 {
		numCandidates = 100
	}

	var buf bytes.Buffer
	esQuery := map[string]interface{}{
		"knn": map[string]interface{}{
			"field":          "vector",
			"query_vector":   queryVector,
			"k":              topK,
			"num_candidates": numCandidates,
			"filter": map[string]interface{}{
				"term": map[string]interface{}{"fingerprint": fingerprint},
			},
		},
		"size":    topK,
		"_source": []string{"fingerprint", "ordinal", "page_start", "page_end", "token_count", "text_content"},
	}
	if err := json.NewEncoder(&buf).Encode(esQuery); err != nil {
		return nil, fmt.Errorf("failed to encode es query: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.index),
		c.es.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		bodyBytes, _ := io.ReadAll(res.Body)
		log.Errorf("Elasticsearch 返回错误, status: %s, body: %s", res.Status(), string(bodyBytes))
		return nil, fmt.Errorf("elasticsearch returned an error: %s", res.String())
	}

	var esResponse struct {
		Hits struct {
			Hits []struct {
				Source model.EsPassage `json:"_source"`
				Score  float64         `json:"_score"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&esResponse); err != nil {
		return nil, fmt.Errorf("failed to decode es response: %w", err)
	}

	hits := make([]model.SearchHit, 0, len(esResponse.Hits.Hits))
	for _, hit := range esResponse.Hits.Hits {
		hits = append(hits, model.SearchHit{
			Fingerprint: hit.Source.Fingerprint,
			Ordinal:     hit.Source.Ordinal,
			PageStart:   hit.Source.PageStart,
			PageEnd:     hit.Source.PageEnd,
			TokenCount:  hit.Source.TokenCount,
			Text:        hit.Source.TextContent,
			Score:       hit.Score,
		})
	}
	SortHits(hits)
	return hits, nil
}

// SortHits 对检索结果做确定性排序：分数降序，分数相同时段落序号升序。
func SortHits(hits []model.SearchHit) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Ordinal < hits[j].Ordinal
	})
}

// DeleteByFingerprint 删除指定文档指纹下的全部段落。
func (c *Client) DeleteByFingerprint(ctx context.Context, fingerprint string) error {
	query := fmt.Sprintf(`{"query":{"term":{"fingerprint":"%s"}}}`, fingerprint)
	refresh := true
	req := esapi.DeleteByQueryRequest{
		Index:   []string{c.index},
		Body:    strings.NewReader(query),
		Refresh: &refresh,
	}
	res, err := req.Do(ctx, c.es)
	if err != nil {
		return fmt.Errorf("按指纹删除段落失败: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("按指纹删除段落时 Elasticsearch 返回错误: %s", res.String())
		return errors.New("按指纹删除段落时 Elasticsearch 返回错误")
	}
	return nil
}
