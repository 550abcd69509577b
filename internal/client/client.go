// Package client talks to the analytics backend: ingest, search, object
// lookup and camera listing.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/your-org/fdsender/internal/config"
	"github.com/your-org/fdsender/internal/models"
	"github.com/your-org/fdsender/pkg/dto"
)

const headerAPIKey = "X-API-Key"

type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func New(cfg config.BackendConfig) *Client {
	return NewWithHTTPClient(cfg, &http.Client{Timeout: cfg.Timeout})
}

func NewWithHTTPClient(cfg config.BackendConfig, hc *http.Client) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		token:   cfg.Token,
		http:    hc,
	}
}

// Ingest submits one crafted event. Connection failures wrap ErrTransient;
// a 422 wraps ErrUnprocessable.
func (c *Client) Ingest(ctx context.Context, req *dto.IngestRequest) error {
	var resp dto.IngestResponse
	return c.do(ctx, "ingest", http.MethodPost, "/v1/ingest", req, &resp)
}

// Search returns one page of objects of the given base.
func (c *Client) Search(ctx context.Context, base models.Base, req dto.SearchRequest) ([]dto.Object, error) {
	var objects []dto.Object
	path := "/v1/objects/" + url.PathEscape(string(base)) + "/search"
	if err := c.do(ctx, "search", http.MethodPost, path, req, &objects); err != nil {
		return nil, err
	}
	return objects, nil
}

// SearchAll pages through the whole result set, stopping at the first page
// shorter than the page size.
func (c *Client) SearchAll(ctx context.Context, base models.Base, req dto.SearchRequest) ([]dto.Object, error) {
	if req.PgSize <= 0 {
		req.PgSize = 250
	}

	var all []dto.Object
	for {
		page, err := c.Search(ctx, base, req)
		if err != nil {
			return nil, fmt.Errorf("search page at offset %d: %w", req.PgOffset, err)
		}
		all = append(all, page...)
		if len(page) < req.PgSize {
			return all, nil
		}
		req.PgOffset += req.PgSize
	}
}

// GetObject looks up one object by id.
func (c *Client) GetObject(ctx context.Context, base models.Base, id int64) (*dto.Object, error) {
	var obj dto.Object
	path := "/v1/objects/" + url.PathEscape(string(base)) + "/" + strconv.FormatInt(id, 10)
	if err := c.do(ctx, "get object", http.MethodGet, path, nil, &obj); err != nil {
		return nil, err
	}
	return &obj, nil
}

func (c *Client) ListCameras(ctx context.Context) ([]models.Camera, error) {
	var resp dto.CameraListResponse
	if err := c.do(ctx, "list cameras", http.MethodGet, "/v1/cameras", nil, &resp); err != nil {
		return nil, err
	}

	cameras := make([]models.Camera, 0, len(resp.Cameras))
	for _, cam := range resp.Cameras {
		cameras = append(cameras, models.Camera{
			ID:       cam.ID,
			Name:     cam.Name,
			Active:   cam.Active,
			Archived: cam.Archived,
		})
	}
	return cameras, nil
}

func (c *Client) CreateCamera(ctx context.Context, req dto.CreateCameraRequest) (*models.Camera, error) {
	var resp dto.CameraResponse
	if err := c.do(ctx, "create camera", http.MethodPost, "/v1/cameras", req, &resp); err != nil {
		return nil, err
	}
	return &models.Camera{ID: resp.ID, Name: resp.Name, Active: resp.Active, Archived: resp.Archived}, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: marshal request: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set(headerAPIKey, c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", op, ctx.Err())
		}
		return &transientError{op: op, err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &transientError{op: op, err: fmt.Errorf("read body: %w", err)}
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return classify(op, resp.StatusCode, data)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

func classify(op string, status int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	var errResp dto.ErrorResponse
	if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
		msg = errResp.Error
	}

	se := &StatusError{Op: op, Status: status, Message: msg}
	switch {
	case status == http.StatusUnprocessableEntity && strings.Contains(msg, "Unprocessable entity"):
		return &classifiedError{class: ErrUnprocessable, status: se}
	case status == http.StatusNotFound:
		return &classifiedError{class: ErrNotFound, status: se}
	default:
		return se
	}
}
