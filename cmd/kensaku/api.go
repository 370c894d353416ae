package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/hyperjump/kensaku/internal/indexer"
	"github.com/hyperjump/kensaku/internal/models"
	"github.com/hyperjump/kensaku/internal/storage"
)

// statusConfigResponse holds configuration info returned by status.
type statusConfigResponse struct {
	DatabasePath      string `json:"database_path,omitempty"`
	BleveIndexPath    string `json:"bleve_index_path,omitempty"`
	VectorIndexPath   string `json:"vector_index_path,omitempty"`
	VectorMappingPath string `json:"vector_mapping_path,omitempty"`
	Compression       string `json:"compression,omitempty"`
	HistoryEnabled    bool   `json:"history_enabled"`
}

// statusResponse is the shape of GET /api/v1/status response.
type statusResponse struct {
	Documents      int64                 `json:"documents"`
	VectorIndex    indexer.Stats         `json:"vector_index"`
	DiskUsage      *storage.Footprint    `json:"disk_usage,omitempty"`
	DiskUsageBytes *int64                `json:"disk_usage_bytes,omitempty"`
	Config         *statusConfigResponse `json:"config,omitempty"`
}

// apiClient talks to a running server. Commands use it by default so the CLI
// never contends with the server for the Bleve and SQLite locks.
type apiClient struct {
	baseURL string
	http    *http.Client
}

func newAPIClient(baseURL string) *apiClient {
	return &apiClient{baseURL: baseURL, http: &http.Client{Timeout: 2 * time.Minute}}
}

func (c *apiClient) do(method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, bytes.TrimSpace(b))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *apiClient) Search(query *models.SearchQuery) (*models.SearchResponse, error) {
	var response models.SearchResponse
	if err := c.do(http.MethodPost, "/api/v1/search", query, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

func (c *apiClient) Insert(input *models.DocumentInput) error {
	return c.do(http.MethodPost, "/api/v1/documents", input, nil)
}

func (c *apiClient) Delete(id string) error {
	return c.do(http.MethodDelete, "/api/v1/documents/"+url.PathEscape(id), nil, nil)
}

func (c *apiClient) Rebuild() (*indexer.RebuildStats, error) {
	var out struct {
		Indexed    int   `json:"indexed"`
		Skipped    int   `json:"skipped"`
		DurationMs int64 `json:"duration_ms"`
	}
	if err := c.do(http.MethodPost, "/api/v1/index/rebuild", nil, &out); err != nil {
		return nil, err
	}
	return &indexer.RebuildStats{
		Indexed:  out.Indexed,
		Skipped:  out.Skipped,
		Duration: time.Duration(out.DurationMs) * time.Millisecond,
	}, nil
}

func (c *apiClient) Persist() (int, error) {
	var out struct {
		Vectors int `json:"vectors"`
	}
	if err := c.do(http.MethodPost, "/api/v1/index/persist", nil, &out); err != nil {
		return 0, err
	}
	return out.Vectors, nil
}

func (c *apiClient) Status() (*statusResponse, error) {
	var status statusResponse
	if err := c.do(http.MethodGet, "/api/v1/status", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (c *apiClient) History(userID string, limit int) ([]*models.SearchHistory, error) {
	q := url.Values{}
	if userID != "" {
		q.Set("user_id", userID)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out struct {
		History []*models.SearchHistory `json:"history"`
	}
	if err := c.do(http.MethodGet, "/api/v1/history?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out.History, nil
}

func (c *apiClient) ClearHistory(userID string) (int64, error) {
	path := "/api/v1/history"
	if userID != "" {
		path += "?user_id=" + url.QueryEscape(userID)
	}
	var out struct {
		Deleted int64 `json:"deleted"`
	}
	if err := c.do(http.MethodDelete, path, nil, &out); err != nil {
		return 0, err
	}
	return out.Deleted, nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
