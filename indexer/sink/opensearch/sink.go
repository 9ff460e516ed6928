// Package opensearch implements indexer.Sink against an OpenSearch/
// Elasticsearch-compatible `_bulk` endpoint using a plain net/http JSON
// client.
package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/kmwllc/lucille-go/document"
	"github.com/kmwllc/lucille-go/indexer"
)

// Sink submits documents to an OpenSearch index via the bulk API.
type Sink struct {
	httpClient   *http.Client
	baseURL      string
	index        string
	routingField string
	versioning   bool
}

// New constructs a Sink targeting baseURL (e.g. "http://localhost:9200")
// and the named index. routingField, if non-empty, names a document field
// whose value is passed as the bulk action's routing key. versioning, if
// true, sets each action's external version from the document's
// source-transport offset, so the index rejects out-of-order overwrites.
func New(baseURL, index, routingField string, versioning bool) *Sink {
	return &Sink{httpClient: http.DefaultClient, baseURL: baseURL, index: index, routingField: routingField, versioning: versioning}
}

// ValidateConnection checks that the target index exists with a single
// HEAD request.
func (s *Sink) ValidateConnection(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, fmt.Sprintf("%s/%s", s.baseURL, s.index), nil)
	if err != nil {
		return fmt.Errorf("opensearch sink: building request: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("opensearch sink: connecting to %s: %w", s.baseURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("opensearch sink: index %q not reachable (status %d)", s.index, resp.StatusCode)
	}
	return nil
}

type bulkAction struct {
	Index bulkActionMeta `json:"index"`
}

type bulkActionMeta struct {
	Index   string `json:"_index"`
	ID      string `json:"_id"`
	Routing string `json:"routing,omitempty"`
	Version *int64 `json:"version,omitempty"`
	VersionType string `json:"version_type,omitempty"`
}

type bulkItemResult struct {
	Index struct {
		ID     string `json:"_id"`
		Status int    `json:"status"`
		Error  *struct {
			Reason string `json:"reason"`
		} `json:"error"`
	} `json:"index"`
}

type bulkResponse struct {
	Errors bool             `json:"errors"`
	Items  []bulkItemResult `json:"items"`
}

// Index submits docs in a single NDJSON bulk request, one action/source
// pair per document. offsets, positionally aligned with docs, becomes each
// action's external version when versioning is enabled.
func (s *Sink) Index(ctx context.Context, docs []*document.Document, offsets []int64) ([]indexer.Result, error) {
	var body bytes.Buffer
	for i, doc := range docs {
		meta := bulkActionMeta{Index: s.index, ID: doc.ID()}
		if s.routingField != "" {
			if v, ok := doc.GetString(s.routingField); ok {
				meta.Routing = v
			}
		}
		if s.versioning && i < len(offsets) {
			version := offsets[i]
			meta.Version = &version
			meta.VersionType = "external"
		}
		if err := json.NewEncoder(&body).Encode(bulkAction{Index: meta}); err != nil {
			return nil, fmt.Errorf("opensearch sink: encoding action for %s: %w", doc.ID(), err)
		}
		if err := json.NewEncoder(&body).Encode(doc.AsMap()); err != nil {
			return nil, fmt.Errorf("opensearch sink: encoding source for %s: %w", doc.ID(), err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/_bulk", s.baseURL), &body)
	if err != nil {
		return nil, fmt.Errorf("opensearch sink: building bulk request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-ndjson")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("opensearch sink: bulk request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("opensearch sink: bulk request returned status %d", resp.StatusCode)
	}

	var parsed bulkResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("opensearch sink: decoding bulk response: %w", err)
	}

	results := make([]indexer.Result, len(parsed.Items))
	for i, item := range parsed.Items {
		var itemErr error
		if item.Index.Error != nil {
			itemErr = fmt.Errorf("%s", item.Index.Error.Reason)
		}
		results[i] = indexer.Result{DocumentID: item.Index.ID, Err: itemErr}
	}
	return results, nil
}
