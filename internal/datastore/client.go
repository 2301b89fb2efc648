// Package datastore wraps the DHIS2 dataStore API: per-namespace key/value
// documents with 404-on-missing semantics. A missing key or namespace is an
// expected condition everywhere in the app, not an error.
package datastore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"dqa360-backend/internal/api"
)

// Store is the namespace/key capability consumed by the repository and the
// metadata factory. *Client implements it against a live instance; tests use
// in-memory fakes.
type Store interface {
	ListKeys(ctx context.Context, namespace string) ([]string, error)
	Get(ctx context.Context, namespace, key string, dest interface{}) error
	Create(ctx context.Context, namespace, key string, value interface{}) error
	Update(ctx context.Context, namespace, key string, value interface{}) error
	Delete(ctx context.Context, namespace, key string) error
}

// Client talks to the dataStore endpoints of one DHIS2 instance
type Client struct {
	baseURL string
	http    *resty.Client
}

// NewClient creates a dataStore client. Store calls carry their own context
// deadlines (the repository's fallback ladder), so no client-wide timeout is
// set beyond a generous ceiling.
func NewClient(baseURL, username, password string) *Client {
	c := &Client{baseURL: strings.TrimRight(baseURL, "/")}

	c.http = resty.New().
		SetHeader("User-Agent", "python-requests/2.31.0").
		SetBasicAuth(username, password).
		SetTimeout(120 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return r.StatusCode() == 429 || (r.StatusCode() >= 500 && r.StatusCode() <= 504)
		})

	return c
}

// ListKeys returns all keys in a namespace. A 404 means the namespace has
// never been written to; the caller decides whether that is "fresh install".
func (c *Client) ListKeys(ctx context.Context, namespace string) ([]string, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		Get(c.url(namespace))
	if err != nil {
		return nil, fmt.Errorf("failed to list keys in %s: %w", namespace, err)
	}
	if !resp.IsSuccess() {
		return nil, c.statusError(resp)
	}

	var keys []string
	if err := json.Unmarshal(resp.Body(), &keys); err != nil {
		return nil, fmt.Errorf("failed to parse key list for %s: %w", namespace, err)
	}

	return keys, nil
}

// Get loads one document into dest. Returns a 404 StatusError when the key
// is absent; use api.IsNotFound to detect it.
func (c *Client) Get(ctx context.Context, namespace, key string, dest interface{}) error {
	resp, err := c.http.R().
		SetContext(ctx).
		Get(c.url(namespace, key))
	if err != nil {
		return fmt.Errorf("failed to get %s/%s: %w", namespace, key, err)
	}
	if !resp.IsSuccess() {
		return c.statusError(resp)
	}

	if dest == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), dest); err != nil {
		return fmt.Errorf("failed to parse %s/%s: %w", namespace, key, err)
	}

	return nil
}

// Create writes a new key. Returns a 409 StatusError if the key exists.
func (c *Client) Create(ctx context.Context, namespace, key string, value interface{}) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(value).
		Post(c.url(namespace, key))
	if err != nil {
		return fmt.Errorf("failed to create %s/%s: %w", namespace, key, err)
	}
	if !resp.IsSuccess() {
		return c.statusError(resp)
	}
	return nil
}

// Update overwrites an existing key. Returns a 404 StatusError if the key
// is absent; callers fall back to Create.
func (c *Client) Update(ctx context.Context, namespace, key string, value interface{}) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(value).
		Put(c.url(namespace, key))
	if err != nil {
		return fmt.Errorf("failed to update %s/%s: %w", namespace, key, err)
	}
	if !resp.IsSuccess() {
		return c.statusError(resp)
	}
	return nil
}

// Delete removes a key
func (c *Client) Delete(ctx context.Context, namespace, key string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		Delete(c.url(namespace, key))
	if err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", namespace, key, err)
	}
	if !resp.IsSuccess() {
		return c.statusError(resp)
	}
	return nil
}

func (c *Client) url(parts ...string) string {
	return fmt.Sprintf("%s/api/dataStore/%s", c.baseURL, strings.Join(parts, "/"))
}

func (c *Client) statusError(resp *resty.Response) error {
	body := resp.Body()
	n := 500
	if len(body) < n {
		n = len(body)
	}
	return &api.StatusError{Code: resp.StatusCode(), Body: string(body[:n])}
}

// Upsert writes a key with update-then-create-on-404 semantics, the standard
// write path for documents that may or may not exist yet.
func Upsert(ctx context.Context, s Store, namespace, key string, value interface{}) error {
	err := s.Update(ctx, namespace, key, value)
	if api.IsNotFound(err) {
		return s.Create(ctx, namespace, key, value)
	}
	return err
}
