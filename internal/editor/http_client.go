package editor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cloudnote/cloudnote/backend/go-services/internal/note"
	"github.com/cloudnote/cloudnote/backend/go-services/internal/note/service"
	"github.com/cloudnote/cloudnote/backend/go-services/internal/patch"
)

// HTTPClient talks to a remote notes API. It maps 404 to note.ErrNotFound
// and 409 to a note.ConflictError carrying the server version from the
// response body, so sessions behave the same over the wire as in-process.
type HTTPClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

var _ Client = (*HTTPClient)(nil)

func (c *HTTPClient) Get(ctx context.Context, id string) (*note.Note, error) {
	var n note.Note
	if err := c.do(ctx, http.MethodGet, "/api/notes/"+id, nil, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

func (c *HTTPClient) Update(ctx context.Context, id string, in service.UpdateInput) (*note.Note, error) {
	var n note.Note
	if err := c.do(ctx, http.MethodPut, "/api/notes/"+id, in, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

type patchRequest struct {
	Ops     []patch.Op `json:"ops"`
	Version int64      `json:"version"`
}

func (c *HTTPClient) Patch(ctx context.Context, id string, ops []patch.Op, version int64) (*note.Note, error) {
	var n note.Note
	if err := c.do(ctx, http.MethodPost, "/api/notes/"+id+"/patch", patchRequest{Ops: ops, Version: version}, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

type errorResponse struct {
	Error         string `json:"error"`
	ServerVersion int64  `json:"serverVersion"`
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return note.ErrNotFound
	case resp.StatusCode == http.StatusConflict:
		var er errorResponse
		if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
			return &note.ConflictError{}
		}
		return &note.ConflictError{ServerVersion: er.ServerVersion}
	case resp.StatusCode >= 400:
		var er errorResponse
		if err := json.NewDecoder(resp.Body).Decode(&er); err == nil && er.Error != "" {
			return fmt.Errorf("notes api: %s (status %d)", er.Error, resp.StatusCode)
		}
		return fmt.Errorf("notes api: status %d", resp.StatusCode)
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
