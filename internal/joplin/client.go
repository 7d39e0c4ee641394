package joplin

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

	"golang.org/x/time/rate"

	"github.com/takak2166/expo2joplin/internal/logger"
	"github.com/takak2166/expo2joplin/internal/models"
)

const (
	searchFields = "id,title,parent_id"
	searchLimit  = "100"
	maxErrorBody = 4096
)

// Client talks to the Joplin Data API (the Web Clipper service)
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	observer   RequestObserver
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithRequestDelay spaces consecutive requests at least d apart.
// Zero or negative disables pacing.
func WithRequestDelay(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.limiter = rate.NewLimiter(rate.Every(d), 1)
		}
	}
}

// WithObserver reports every request to o
func WithObserver(o RequestObserver) Option {
	return func(c *Client) {
		c.observer = o
	}
}

// New creates a new Joplin client
func New(apiURL, token string, opts ...Option) (*Client, error) {
	if apiURL == "" {
		return nil, ErrMissingURL
	}
	if token == "" {
		return nil, ErrMissingToken
	}
	if _, err := url.ParseRequestURI(apiURL); err != nil {
		return nil, fmt.Errorf("invalid joplin API URL: %w", err)
	}

	c := &Client{
		baseURL:    strings.TrimRight(apiURL, "/"),
		token:      token,
		httpClient: http.DefaultClient,
		limiter:    rate.NewLimiter(rate.Inf, 0),
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Folders lists all folders
func (c *Client) Folders(ctx context.Context) (*models.FolderList, error) {
	params := url.Values{}
	params.Set("fields", searchFields)

	var list models.FolderList
	if err := c.do(ctx, http.MethodGet, "/folders", "/folders", params, nil, &list); err != nil {
		return nil, fmt.Errorf("failed to list folders: %w", err)
	}
	return &list, nil
}

// FindFolder runs a folder search. Matches are unordered.
func (c *Client) FindFolder(ctx context.Context, query string) (*models.FolderList, error) {
	var list models.FolderList
	if err := c.search(ctx, query, "folder", &list); err != nil {
		return nil, fmt.Errorf("failed to search folders: %w", err)
	}
	return &list, nil
}

// GetFolder fetches a single folder by id
func (c *Client) GetFolder(ctx context.Context, id string) (*models.Folder, error) {
	var folder models.Folder
	if err := c.do(ctx, http.MethodGet, "/folders/"+url.PathEscape(id), "/folders/:id", nil, nil, &folder); err != nil {
		return nil, fmt.Errorf("failed to get folder: %w", err)
	}
	return &folder, nil
}

// CreateFolder creates a folder, at the top level when parentID is empty
func (c *Client) CreateFolder(ctx context.Context, title string, parentID string) (*models.Folder, error) {
	logger.Debug("Creating Joplin folder", map[string]interface{}{
		"title":     title,
		"parent_id": parentID,
	})

	req := models.Folder{Title: title, ParentID: parentID}
	var folder models.Folder
	if err := c.do(ctx, http.MethodPost, "/folders", "/folders", nil, &req, &folder); err != nil {
		return nil, fmt.Errorf("failed to create folder: %w", err)
	}
	return &folder, nil
}

// FindNote runs a note search. Matches are unordered.
func (c *Client) FindNote(ctx context.Context, query string) (*models.NoteList, error) {
	var list models.NoteList
	if err := c.search(ctx, query, "note", &list); err != nil {
		return nil, fmt.Errorf("failed to search notes: %w", err)
	}
	return &list, nil
}

// GetNote fetches a single note by id
func (c *Client) GetNote(ctx context.Context, id string) (*models.Note, error) {
	params := url.Values{}
	params.Set("fields", "id,title,body,parent_id,author,is_todo")

	var note models.Note
	if err := c.do(ctx, http.MethodGet, "/notes/"+url.PathEscape(id), "/notes/:id", params, nil, &note); err != nil {
		return nil, fmt.Errorf("failed to get note: %w", err)
	}
	return &note, nil
}

// CreateNote creates a note from the given fields
func (c *Client) CreateNote(ctx context.Context, note *models.Note) (*models.Note, error) {
	logger.Debug("Creating Joplin note", map[string]interface{}{
		"title":     note.Title,
		"parent_id": note.ParentID,
	})

	var created models.Note
	if err := c.do(ctx, http.MethodPost, "/notes", "/notes", nil, note, &created); err != nil {
		return nil, fmt.Errorf("failed to create note: %w", err)
	}
	return &created, nil
}

// UpdateNote overwrites the given fields of an existing note
func (c *Client) UpdateNote(ctx context.Context, note *models.Note) (*models.Note, error) {
	if note.ID == "" {
		return nil, ErrMissingID
	}

	logger.Debug("Updating Joplin note", map[string]interface{}{
		"id":    note.ID,
		"title": note.Title,
	})

	var updated models.Note
	if err := c.do(ctx, http.MethodPut, "/notes/"+url.PathEscape(note.ID), "/notes/:id", nil, note, &updated); err != nil {
		return nil, fmt.Errorf("failed to update note: %w", err)
	}
	return &updated, nil
}

func (c *Client) search(ctx context.Context, query, itemType string, out interface{}) error {
	params := url.Values{}
	params.Set("query", query)
	params.Set("type", itemType)
	params.Set("fields", searchFields)
	params.Set("limit", searchLimit)

	return c.do(ctx, http.MethodGet, "/search", "/search", params, nil, out)
}

// do sends one authenticated request and decodes the JSON response into out.
// endpoint is the low-cardinality route used for metrics.
func (c *Client) do(ctx context.Context, method, path, endpoint string, params url.Values, body, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	if params == nil {
		params = url.Values{}
	}
	params.Set("token", c.token)
	reqURL := c.baseURL + path + "?" + params.Encode()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(method, endpoint, 0)
		// the url.Error carries the token in the query string
		return fmt.Errorf("%s %s: %w", method, path, unwrapURLError(err))
	}
	defer resp.Body.Close()
	c.observe(method, endpoint, resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(msg)),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) observe(method, endpoint string, code int) {
	if c.observer != nil {
		c.observer.ObserveRequest(method, endpoint, code)
	}
}

func unwrapURLError(err error) error {
	if uerr, ok := err.(*url.Error); ok {
		return uerr.Err
	}
	return err
}
