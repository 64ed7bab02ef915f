// Package sync reconciles backend-owned master data into the local store:
// incremental per-entity pulls, per-entity state tracking, connectivity
// gating and single-flight coalescing of concurrent triggers.
package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/thantzin/pocketledger/internal/models"
)

// BackendClient fetches master-data records updated after a watermark.
type BackendClient interface {
	FetchBanks(ctx context.Context, updatedAfter time.Time) ([]models.Bank, error)
	FetchCategories(ctx context.Context, updatedAfter time.Time) ([]models.Category, error)
}

// envelope is the backend's response shape for every entity endpoint.
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// HTTPClient pulls master data over the backend's paged JSON API.
type HTTPClient struct {
	baseURL    string
	pageSize   int
	httpClient *http.Client
}

// NewHTTPClient creates a backend client. pageSize caps each page of the
// incremental pull.
func NewHTTPClient(baseURL string, timeout time.Duration, pageSize int) *HTTPClient {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if pageSize <= 0 {
		pageSize = 200
	}
	return &HTTPClient{
		baseURL:  trimmed,
		pageSize: pageSize,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// FetchBanks returns every bank updated after the watermark.
func (c *HTTPClient) FetchBanks(ctx context.Context, updatedAfter time.Time) ([]models.Bank, error) {
	var out []models.Bank
	err := c.fetchPages(ctx, "banks", updatedAfter, func(data json.RawMessage) (int, error) {
		var page []wireBank
		if err := json.Unmarshal(data, &page); err != nil {
			return 0, fmt.Errorf("decode banks page: %w", err)
		}
		for _, w := range page {
			bank, err := w.normalize()
			if err != nil {
				return 0, err
			}
			out = append(out, bank)
		}
		return len(page), nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// FetchCategories returns every category updated after the watermark.
func (c *HTTPClient) FetchCategories(ctx context.Context, updatedAfter time.Time) ([]models.Category, error) {
	var out []models.Category
	err := c.fetchPages(ctx, "categories", updatedAfter, func(data json.RawMessage) (int, error) {
		var page []wireCategory
		if err := json.Unmarshal(data, &page); err != nil {
			return 0, fmt.Errorf("decode categories page: %w", err)
		}
		for _, w := range page {
			category, err := w.normalize()
			if err != nil {
				return 0, err
			}
			out = append(out, category)
		}
		return len(page), nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// fetchPages walks the endpoint page by page until a short page.
func (c *HTTPClient) fetchPages(ctx context.Context, entity string, updatedAfter time.Time, decodePage func(json.RawMessage) (int, error)) error {
	for offset := 0; ; offset += c.pageSize {
		data, err := c.fetchPage(ctx, entity, updatedAfter, offset)
		if err != nil {
			return err
		}
		n, err := decodePage(data)
		if err != nil {
			return err
		}
		if n < c.pageSize {
			return nil
		}
	}
}

func (c *HTTPClient) fetchPage(ctx context.Context, entity string, updatedAfter time.Time, offset int) (json.RawMessage, error) {
	params := url.Values{}
	params.Set("updated_after", updatedAfter.UTC().Format(time.RFC3339))
	params.Set("limit", strconv.Itoa(c.pageSize))
	params.Set("offset", strconv.Itoa(offset))
	endpoint := fmt.Sprintf("%s/%s?%s", c.baseURL, entity, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", entity, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", entity, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", entity, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: unexpected status %s", entity, resp.Status)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode %s envelope: %w", entity, err)
	}
	if !env.Success {
		return nil, fmt.Errorf("fetch %s: backend rejected request: %s", entity, env.Message)
	}
	if len(env.Data) == 0 {
		return json.RawMessage("[]"), nil
	}
	return env.Data, nil
}

// Wire types tolerate the backend's inconsistent field naming across
// endpoints. Go's JSON decoding already matches keys case-insensitively
// ("Id", "ID", "id" all land in the id slot); the extra alias fields absorb
// the snake/camel renames, and normalize is the single place per entity where
// the canonical record is assembled.

type wireBank struct {
	ID       *int64 `json:"id"`
	BankID   *int64 `json:"bank_id"`
	Name     string `json:"name"`
	BankName string `json:"bank_name"`
	Color    string `json:"color"`
	ImageURL string `json:"image_url"`
	Image    string `json:"image"`
}

func (w wireBank) normalize() (models.Bank, error) {
	id := firstID(w.ID, w.BankID)
	if id == nil {
		return models.Bank{}, errors.New("bank payload has no identifier")
	}
	return models.Bank{
		RemoteID: *id,
		Name:     firstNonEmpty(w.Name, w.BankName),
		Color:    w.Color,
		ImageURL: firstNonEmpty(w.ImageURL, w.Image),
	}, nil
}

type wireCategory struct {
	ID           *int64 `json:"id"`
	CategoryID   *int64 `json:"category_id"`
	Name         string `json:"name"`
	CategoryName string `json:"category_name"`
	Description  string `json:"description"`
	UserID       *int64 `json:"user_id"`
}

func (w wireCategory) normalize() (models.Category, error) {
	id := firstID(w.ID, w.CategoryID)
	if id == nil {
		return models.Category{}, errors.New("category payload has no identifier")
	}
	return models.Category{
		RemoteID:    *id,
		Name:        firstNonEmpty(w.Name, w.CategoryName),
		Description: w.Description,
		UserID:      w.UserID,
		Origin:      models.CategoryOriginSynced,
	}, nil
}

func firstID(candidates ...*int64) *int64 {
	for _, c := range candidates {
		if c != nil {
			return c
		}
	}
	return nil
}

func firstNonEmpty(candidates ...string) string {
	for _, c := range candidates {
		if c != "" {
			return c
		}
	}
	return ""
}
