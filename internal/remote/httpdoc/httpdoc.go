// Package httpdoc is an HTTP client for a remote document-store API.
//
// It implements remote.Store against a plain REST layout:
//
//	GET    {base}/collections/{path}?field=F&value=V  → [{"id":..,"fields":{..}}]
//	PUT    {base}/collections/{path}/{id}             ← fields as JSON body
//	DELETE {base}/collections/{path}/{id}
//
// Transport details stay inside this package; the engine only ever sees the
// remote.Store contract and ordinary errors. A generous client-side timeout
// turns a hung backend into a plain failure, which the engine maps to its
// offline fallback — timeouts are not a special state.
package httpdoc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/qliu/flashsync/internal/remote"
)

var _ remote.Store = (*Client)(nil)

// defaultTimeout bounds every remote call. Generous on purpose: the engine
// treats expiry as a failure and falls back to cache, so a too-short value
// would flap healthy-but-slow backends into offline mode.
const defaultTimeout = 10 * time.Second

type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for the document-store API at baseURL.
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
	}
}

// document mirrors the wire shape of one record.
type document struct {
	ID     string         `json:"id"`
	Fields map[string]any `json:"fields"`
}

func (c *Client) GetDocuments(ctx context.Context, path string, filters ...remote.Filter) ([]remote.Document, error) {
	u := c.baseURL + "/collections/" + url.PathEscape(path)
	if len(filters) > 0 {
		q := url.Values{}
		for _, f := range filters {
			q.Add("field", f.Field)
			q.Add("value", fmt.Sprint(f.Value))
		}
		u += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("httpdoc: building request: %w", err)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("httpdoc: querying %s: %w", path, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("httpdoc: querying %s: unexpected status %d", path, res.StatusCode)
	}

	var docs []document
	if err := json.NewDecoder(res.Body).Decode(&docs); err != nil {
		return nil, fmt.Errorf("httpdoc: decoding %s response: %w", path, err)
	}

	out := make([]remote.Document, 0, len(docs))
	for _, d := range docs {
		out = append(out, remote.Document{ID: d.ID, Fields: d.Fields})
	}
	return out, nil
}

func (c *Client) SetDocument(ctx context.Context, path, id string, fields map[string]any) error {
	body, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("httpdoc: encoding document %s/%s: %w", path, id, err)
	}

	u := c.baseURL + "/collections/" + url.PathEscape(path) + "/" + url.PathEscape(id)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, u, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("httpdoc: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("httpdoc: writing %s/%s: %w", path, id, err)
	}
	defer drain(res)

	if res.StatusCode != http.StatusOK && res.StatusCode != http.StatusCreated && res.StatusCode != http.StatusNoContent {
		return fmt.Errorf("httpdoc: writing %s/%s: unexpected status %d", path, id, res.StatusCode)
	}
	return nil
}

func (c *Client) DeleteDocument(ctx context.Context, path, id string) error {
	u := c.baseURL + "/collections/" + url.PathEscape(path) + "/" + url.PathEscape(id)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, u, nil)
	if err != nil {
		return fmt.Errorf("httpdoc: building request: %w", err)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("httpdoc: deleting %s/%s: %w", path, id, err)
	}
	defer drain(res)

	// 404 is success: the desired end state (document gone) is reached.
	if res.StatusCode != http.StatusOK && res.StatusCode != http.StatusNoContent && res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("httpdoc: deleting %s/%s: unexpected status %d", path, id, res.StatusCode)
	}
	return nil
}

// drain reads and closes the body so the connection can be reused.
func drain(res *http.Response) {
	io.Copy(io.Discard, res.Body)
	res.Body.Close()
}
