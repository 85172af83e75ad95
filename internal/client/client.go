package client

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/GriffinCanCode/widgetd/internal/shared/types"
)

// Client talks to a widgetd control surface
type Client struct {
	resty *resty.Client
}

// APIError is a non-2xx answer from widgetd
type APIError struct {
	Status  int
	Message string
	// InstanceID is set when a failed launch still created an instance
	InstanceID string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("widgetd: %d: %s", e.Status, e.Message)
}

type errorBody struct {
	Error      string `json:"error"`
	InstanceID string `json:"instance_id"`
}

// LaunchResult is the answer to Launch
type LaunchResult struct {
	InstanceID string `json:"instance_id"`
	PID        int    `json:"pid"`
}

// LaunchOptions are the optional launch parameters
type LaunchOptions struct {
	InstanceID string        `json:"instance_id,omitempty"`
	Content    types.Content `json:"content_info,omitempty"`
	Width      int           `json:"width,omitempty"`
	Height     int           `json:"height,omitempty"`
}

type instanceList struct {
	Instances []types.InstanceInfo `json:"instances"`
	Count     int                  `json:"count"`
}

// New creates a client for the daemon at baseURL
func New(baseURL string, timeout time.Duration) *Client {
	r := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "widgetctl/1.0").
		SetError(&errorBody{})
	return &Client{resty: r}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	req := c.resty.R().SetContext(ctx)
	if body != nil {
		req.SetBody(body)
	}
	if out != nil {
		req.SetResult(out)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("widgetd request %s %s: %w", method, path, err)
	}
	if resp.IsError() {
		apiErr := &APIError{Status: resp.StatusCode(), Message: resp.Status()}
		if e, ok := resp.Error().(*errorBody); ok && e.Error != "" {
			apiErr.Message = e.Error
			apiErr.InstanceID = e.InstanceID
		}
		return apiErr
	}
	return nil
}

func instancePath(widgetID, instanceID string) string {
	return "/v1/widgets/" + url.PathEscape(widgetID) + "/instances/" + url.PathEscape(instanceID)
}

// Stats returns registry statistics
func (c *Client) Stats(ctx context.Context) (types.Stats, error) {
	var stats types.Stats
	err := c.do(ctx, resty.MethodGet, "/v1/stats", nil, &stats)
	return stats, err
}

// List returns every instance, or those of widgetID when it is set. A
// positive limit caps the result.
func (c *Client) List(ctx context.Context, widgetID string, limit int) ([]types.InstanceInfo, error) {
	path := "/v1/instances"
	if widgetID != "" {
		path = "/v1/widgets/" + url.PathEscape(widgetID) + "/instances"
		if limit > 0 {
			path += "?limit=" + strconv.Itoa(limit)
		}
	}
	var list instanceList
	if err := c.do(ctx, resty.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}
	return list.Instances, nil
}

// Get returns one instance
func (c *Client) Get(ctx context.Context, widgetID, instanceID string) (types.InstanceInfo, error) {
	var info types.InstanceInfo
	err := c.do(ctx, resty.MethodGet, instancePath(widgetID, instanceID), nil, &info)
	return info, err
}

// Create registers an instance without launching it
func (c *Client) Create(ctx context.Context, widgetID string) (string, error) {
	var out struct {
		InstanceID string `json:"instance_id"`
	}
	err := c.do(ctx, resty.MethodPost, "/v1/widgets/"+url.PathEscape(widgetID)+"/instances", nil, &out)
	return out.InstanceID, err
}

// Launch starts a widget instance
func (c *Client) Launch(ctx context.Context, widgetID string, opts LaunchOptions) (LaunchResult, error) {
	var out LaunchResult
	err := c.do(ctx, resty.MethodPost, "/v1/widgets/"+url.PathEscape(widgetID)+"/launch", opts, &out)
	return out, err
}

// Terminate asks the instance to stop
func (c *Client) Terminate(ctx context.Context, widgetID, instanceID string) error {
	return c.do(ctx, resty.MethodPost, instancePath(widgetID, instanceID)+"/terminate", nil, nil)
}

// Destroy asks the instance to delete itself
func (c *Client) Destroy(ctx context.Context, widgetID, instanceID string) error {
	return c.do(ctx, resty.MethodDelete, instancePath(widgetID, instanceID), nil, nil)
}

// Resize sends a new size
func (c *Client) Resize(ctx context.Context, widgetID, instanceID string, width, height int) error {
	body := map[string]int{"width": width, "height": height}
	return c.do(ctx, resty.MethodPost, instancePath(widgetID, instanceID)+"/resize", body, nil)
}

// Update asks the instance to refresh
func (c *Client) Update(ctx context.Context, widgetID, instanceID string, content types.Content, force bool) error {
	body := map[string]any{"content_info": content, "force": force}
	return c.do(ctx, resty.MethodPost, instancePath(widgetID, instanceID)+"/update", body, nil)
}

// Period changes the update period in seconds
func (c *Client) Period(ctx context.Context, widgetID, instanceID string, period float64) error {
	body := map[string]float64{"period": period}
	return c.do(ctx, resty.MethodPost, instancePath(widgetID, instanceID)+"/period", body, nil)
}

// Emit injects a raw lifecycle envelope
func (c *Client) Emit(ctx context.Context, env types.Bundle) error {
	return c.do(ctx, resty.MethodPost, "/v1/envelopes", env, nil)
}

// LogLevel returns the daemon log level
func (c *Client) LogLevel(ctx context.Context) (string, error) {
	var out struct {
		Level string `json:"level"`
	}
	err := c.do(ctx, resty.MethodGet, "/v1/log-level", nil, &out)
	return out.Level, err
}

// SetLogLevel changes the daemon log level
func (c *Client) SetLogLevel(ctx context.Context, level string) error {
	return c.do(ctx, resty.MethodPut, "/v1/log-level", map[string]string{"level": level}, nil)
}
