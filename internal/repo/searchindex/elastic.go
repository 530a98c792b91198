package searchindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"neogvm/internal/config"
	"neogvm/internal/model/gvm"
	"neogvm/internal/model/system"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// ElasticIndex Elasticsearch 实现
type ElasticIndex struct {
	client *elasticsearch.Client
}

// NewElasticIndex 创建 Elasticsearch 客户端，不在此处探测连通性
func NewElasticIndex(cfg *config.IndexConfig) (*ElasticIndex, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}
	return &ElasticIndex{client: client}, nil
}

// EnsureIndex HEAD 返回 404 时才创建
func (e *ElasticIndex) EnsureIndex(ctx context.Context, name string, mapping map[string]interface{}) (bool, error) {
	res, err := e.client.Indices.Exists([]string{name}, e.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return false, system.NewPersistenceError("index_exists", name, err)
	}
	drain(res)

	switch res.StatusCode {
	case http.StatusOK:
		return false, nil
	case http.StatusNotFound:
	default:
		return false, system.NewPersistenceError("index_exists", name, fmt.Errorf("unexpected status %d", res.StatusCode))
	}

	body, err := json.Marshal(mapping)
	if err != nil {
		return false, system.NewPersistenceError("create_index", name, err)
	}
	res, err = e.client.Indices.Create(name,
		e.client.Indices.Create.WithBody(bytes.NewReader(body)),
		e.client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return false, system.NewPersistenceError("create_index", name, err)
	}
	defer drain(res)
	if !res.IsError() {
		return true, nil
	}
	msg, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
	// 重叠的入库运行可能同时创建，另一方已建好即视为存在
	if res.StatusCode == http.StatusBadRequest && bytes.Contains(msg, []byte("resource_already_exists_exception")) {
		return false, nil
	}
	return false, system.NewPersistenceError("create_index", name, fmt.Errorf("%s: %s", res.Status(), bytes.TrimSpace(msg)))
}

// Upsert 以记录 id 作为文档 id 写入，已存在时整体覆盖
func (e *ElasticIndex) Upsert(ctx context.Context, index, id string, doc *gvm.IndexDocument) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return system.NewPersistenceError("index_document", id, err)
	}
	res, err := e.client.Index(index, bytes.NewReader(body),
		e.client.Index.WithDocumentID(id),
		e.client.Index.WithContext(ctx),
	)
	if err != nil {
		return system.NewPersistenceError("index_document", id, err)
	}
	if err := responseError(res); err != nil {
		return system.NewPersistenceError("index_document", id, err)
	}
	return nil
}

func responseError(res *esapi.Response) error {
	defer drain(res)
	if !res.IsError() {
		return nil
	}
	msg, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
	return fmt.Errorf("%s: %s", res.Status(), bytes.TrimSpace(msg))
}

func drain(res *esapi.Response) {
	if res != nil && res.Body != nil {
		io.Copy(io.Discard, res.Body)
		res.Body.Close()
	}
}
