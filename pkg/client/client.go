package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dhawalhost/authgate/pkg/middleware"
)

// Client calls the authorization service API on behalf of one caller.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	CallerID   string
	OrgID      string
}

// Config holds configuration for the client. OrgID is optional and only
// honoured by the server for members of the root organization.
type Config struct {
	BaseURL  string
	CallerID string
	OrgID    string
	Timeout  time.Duration
}

// New creates a new Client.
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		BaseURL:  cfg.BaseURL,
		CallerID: cfg.CallerID,
		OrgID:    cfg.OrgID,
		HTTPClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// doRequest helper to perform identified requests.
func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		bodyReader = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bodyReader)
	if err != nil {
		return err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.CallerID != "" {
		req.Header.Set(middleware.DefaultUserHeader, c.CallerID)
	}
	if c.OrgID != "" {
		req.Header.Set(middleware.DefaultOrgHeader, c.OrgID)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API error %d: %s", resp.StatusCode, string(respBody))
	}

	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return err
		}
	}

	return nil
}

// ResourceActions pairs a resource with the actions a user may perform
// on it.
type ResourceActions struct {
	Resource string   `json:"resource"`
	Actions  []string `json:"actions"`
}

// Check reports whether userID may perform action on resource.
func (c *Client) Check(ctx context.Context, userID, action, resource string) (bool, error) {
	payload := map[string]string{
		"user_id":  userID,
		"action":   action,
		"resource": resource,
	}
	var res struct {
		Access bool `json:"access"`
	}
	if err := c.doRequest(ctx, http.MethodPost, "/authorization/check", payload, &res); err != nil {
		return false, err
	}
	return res.Access, nil
}

// ListActions lists the actions userID may perform on resource.
func (c *Client) ListActions(ctx context.Context, userID, resource string) ([]string, error) {
	payload := map[string]string{
		"user_id":  userID,
		"resource": resource,
	}
	var res struct {
		Actions []string `json:"actions"`
	}
	if err := c.doRequest(ctx, http.MethodPost, "/authorization/actions", payload, &res); err != nil {
		return nil, err
	}
	return res.Actions, nil
}

// ListActionsOnResources lists allowed actions for several resources in
// one round trip. Results come back in the order the resources were
// given.
func (c *Client) ListActionsOnResources(ctx context.Context, userID string, resources []string) ([]ResourceActions, error) {
	payload := map[string]interface{}{
		"user_id":   userID,
		"resources": resources,
	}
	var res struct {
		Results []ResourceActions `json:"results"`
	}
	if err := c.doRequest(ctx, http.MethodPost, "/authorization/actions/batch", payload, &res); err != nil {
		return nil, err
	}
	return res.Results, nil
}
