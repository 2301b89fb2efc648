package api

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// MutateResult carries the outcome of a metadata create/update/delete call.
type MutateResult struct {
	Status     string `json:"status"`
	UID        string `json:"uid"`
	HTTPStatus int    `json:"httpStatus"`
}

// MetadataClient is the query/mutate capability against DHIS2 typed resources
// (dataSets, dataElements, categoryCombos, categories, categoryOptions,
// organisationUnits). Services consume this interface; *Client implements it.
type MetadataClient interface {
	GetResource(resource, id, fields string) (map[string]interface{}, error)
	QueryResource(resource string, params map[string]string) ([]map[string]interface{}, error)
	CreateResource(resource string, payload map[string]interface{}) (*MutateResult, error)
	UpdateResource(resource, id string, payload map[string]interface{}) (*MutateResult, error)
	DeleteResource(resource, id string) error
	GenerateIDs(n int) ([]string, error)
}

// Client represents a DHIS2 API client
type Client struct {
	baseURL   string
	username  string
	password  string
	http      *resty.Client
	nameCache *lruCache // Cache for org unit names
}

// NewClient creates a new DHIS2 API client
func NewClient(baseURL, username, password string) *Client {
	client := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		username:  username,
		password:  password,
		nameCache: newLRUCache(512),
	}

	// Configure resty client
	client.http = resty.New().
		SetHeader("User-Agent", "python-requests/2.31.0"). // Masquerade as Python to avoid DHIS2 client discrimination
		SetBasicAuth(username, password).
		SetTimeout(600 * time.Second). // 10 minutes timeout for slow DHIS2 servers (async operations can take several minutes)
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			// Retry on 429 (Too Many Requests) and 5xx server errors
			return r.StatusCode() == 429 || (r.StatusCode() >= 500 && r.StatusCode() <= 504)
		})

	return client
}

// Get performs a GET request to the DHIS2 API
func (c *Client) Get(endpoint string, params map[string]string) (*resty.Response, error) {
	url := c.buildURL(endpoint)
	req := c.http.R()

	if params != nil {
		req.SetQueryParams(params)
	}

	return req.Get(url)
}

// Post performs a POST request to the DHIS2 API
func (c *Client) Post(endpoint string, payload interface{}) (*resty.Response, error) {
	url := c.buildURL(endpoint)
	return c.http.R().
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post(url)
}

// Put performs a PUT request to the DHIS2 API
func (c *Client) Put(endpoint string, payload interface{}) (*resty.Response, error) {
	url := c.buildURL(endpoint)
	return c.http.R().
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Put(url)
}

// Delete performs a DELETE request to the DHIS2 API
func (c *Client) Delete(endpoint string, params map[string]string) (*resty.Response, error) {
	url := c.buildURL(endpoint)
	req := c.http.R()

	if params != nil {
		req.SetQueryParams(params)
	}

	return req.Delete(url)
}

// GetResource fetches a single metadata object by ID
func (c *Client) GetResource(resource, id, fields string) (map[string]interface{}, error) {
	endpoint := fmt.Sprintf("api/%s/%s.json", resource, id)
	params := map[string]string{}
	if fields != "" {
		params["fields"] = fields
	}

	resp, err := c.Get(endpoint, params)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s/%s: %w", resource, id, err)
	}
	if !resp.IsSuccess() {
		return nil, statusError(resp)
	}

	var obj map[string]interface{}
	if err := json.Unmarshal(resp.Body(), &obj); err != nil {
		return nil, fmt.Errorf("failed to parse %s/%s response: %w", resource, id, err)
	}

	return obj, nil
}

// QueryResource lists metadata objects of one type. The resource name doubles
// as the key wrapping the result list in the DHIS2 response
// (e.g. {"categoryOptions": [...]}). Paging is disabled unless the caller
// overrides it.
func (c *Client) QueryResource(resource string, params map[string]string) ([]map[string]interface{}, error) {
	query := map[string]string{"paging": "false"}
	for k, v := range params {
		query[k] = v
	}

	resp, err := c.Get(fmt.Sprintf("api/%s.json", resource), query)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", resource, err)
	}
	if !resp.IsSuccess() {
		return nil, statusError(resp)
	}

	var data map[string]interface{}
	if err := json.Unmarshal(resp.Body(), &data); err != nil {
		return nil, fmt.Errorf("failed to parse %s response: %w", resource, err)
	}

	items, ok := data[resource].([]interface{})
	if !ok {
		return []map[string]interface{}{}, nil
	}

	converted := make([]map[string]interface{}, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]interface{}); ok {
			converted = append(converted, m)
		}
	}

	return converted, nil
}

// CreateResource creates a metadata object. A 409 means the identifier or
// name collided with an existing object; callers handle that with IsConflict
// and a rename retry.
func (c *Client) CreateResource(resource string, payload map[string]interface{}) (*MutateResult, error) {
	resp, err := c.Post(fmt.Sprintf("api/%s", resource), payload)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", resource, err)
	}
	if !resp.IsSuccess() {
		return nil, statusError(resp)
	}

	return parseMutateResult(resp, payload)
}

// UpdateResource updates a metadata object in place
func (c *Client) UpdateResource(resource, id string, payload map[string]interface{}) (*MutateResult, error) {
	resp, err := c.Put(fmt.Sprintf("api/%s/%s", resource, id), payload)
	if err != nil {
		return nil, fmt.Errorf("failed to update %s/%s: %w", resource, id, err)
	}
	if !resp.IsSuccess() {
		return nil, statusError(resp)
	}

	return parseMutateResult(resp, payload)
}

// DeleteResource removes a metadata object
func (c *Client) DeleteResource(resource, id string) error {
	resp, err := c.Delete(fmt.Sprintf("api/%s/%s", resource, id), nil)
	if err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", resource, id, err)
	}
	if !resp.IsSuccess() {
		return statusError(resp)
	}
	return nil
}

// GenerateIDs requests n system-unique UIDs from the instance
func (c *Client) GenerateIDs(n int) ([]string, error) {
	if n <= 0 {
		n = 1
	}

	resp, err := c.Get("api/system/id.json", map[string]string{"limit": fmt.Sprintf("%d", n)})
	if err != nil {
		return nil, fmt.Errorf("failed to generate IDs: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, statusError(resp)
	}

	var result struct {
		Codes []string `json:"codes"`
	}
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return nil, fmt.Errorf("failed to parse ID generation response: %w", err)
	}
	if len(result.Codes) == 0 {
		return nil, fmt.Errorf("DHIS2 returned no generated IDs")
	}

	return result.Codes, nil
}

// TestConnection pings the instance and returns its system info
func (c *Client) TestConnection() (map[string]interface{}, error) {
	resp, err := c.Get("api/system/info.json", map[string]string{
		"fields": "version,instanceName,serverDate",
	})
	if err != nil {
		return nil, fmt.Errorf("connection test failed: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, statusError(resp)
	}

	var info map[string]interface{}
	if err := json.Unmarshal(resp.Body(), &info); err != nil {
		return nil, fmt.Errorf("failed to parse system info: %w", err)
	}

	return info, nil
}

// GetOrgUnitName retrieves the name of an organization unit (with caching)
func (c *Client) GetOrgUnitName(orgUnitID string) string {
	if name, exists := c.nameCache.Get(orgUnitID); exists {
		return name
	}

	obj, err := c.GetResource("organisationUnits", orgUnitID, "id,name,displayName")
	if err != nil {
		// Fallback to ID if fetch fails
		c.nameCache.Put(orgUnitID, orgUnitID)
		return orgUnitID
	}

	name, _ := obj["displayName"].(string)
	if name == "" {
		name, _ = obj["name"].(string)
	}
	if name == "" {
		name = orgUnitID
	}

	c.nameCache.Put(orgUnitID, name)
	return name
}

func parseMutateResult(resp *resty.Response, payload map[string]interface{}) (*MutateResult, error) {
	var body struct {
		Status   string `json:"status"`
		Response struct {
			UID string `json:"uid"`
		} `json:"response"`
	}
	// Some DHIS2 versions return an empty body on success; fall back to the
	// ID carried in the payload.
	_ = json.Unmarshal(resp.Body(), &body)

	uid := body.Response.UID
	if uid == "" {
		uid, _ = payload["id"].(string)
	}

	return &MutateResult{
		Status:     body.Status,
		UID:        uid,
		HTTPStatus: resp.StatusCode(),
	}, nil
}

// buildURL constructs the full URL for an endpoint
func (c *Client) buildURL(endpoint string) string {
	endpoint = strings.TrimPrefix(endpoint, "/")
	return fmt.Sprintf("%s/%s", c.baseURL, endpoint)
}

// SetTimeout allows customizing the timeout for specific operations
func (c *Client) SetTimeout(timeout time.Duration) {
	c.http.SetTimeout(timeout)
}
