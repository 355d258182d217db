package api

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

	"github.com/gorilla/websocket"
	"github.com/scenariosim/scenariosim/internal/model"
)

// StatusError is returned for any non-2xx response. Message is the plain-text body.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Status, e.Message)
}

// Client talks to a scenariosim server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a new API client.
func New(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Healthcheck checks if the server is reachable.
func (c *Client) Healthcheck(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthcheck", nil, nil)
}

func (c *Client) CreateScenario(ctx context.Context, req CreateScenarioRequest) (MessageResponse, error) {
	var out MessageResponse
	err := c.do(ctx, http.MethodPost, "/api/scenarios", req, &out)
	return out, err
}

func (c *Client) ListScenarios(ctx context.Context) ([]model.Scenario, error) {
	var out []model.Scenario
	err := c.do(ctx, http.MethodGet, "/api/scenarios", nil, &out)
	return out, err
}

func (c *Client) UpdateScenario(ctx context.Context, id uint, req UpdateScenarioRequest) error {
	return c.do(ctx, http.MethodPut, fmt.Sprintf("/api/scenarios/%d", id), req, nil)
}

func (c *Client) DeleteScenario(ctx context.Context, id uint) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/scenarios/%d", id), nil, nil)
}

func (c *Client) DeleteAllScenarios(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/api/scenarios", nil, nil)
}

func (c *Client) CreateVehicle(ctx context.Context, req CreateVehicleRequest) (MessageResponse, error) {
	var out MessageResponse
	err := c.do(ctx, http.MethodPost, "/api/vehicles", req, &out)
	return out, err
}

func (c *Client) ListVehicles(ctx context.Context, scenario string) ([]model.Vehicle, error) {
	var out []model.Vehicle
	err := c.do(ctx, http.MethodGet, "/api/vehicles?scenario="+url.QueryEscape(scenario), nil, &out)
	return out, err
}

func (c *Client) UpdateVehicle(ctx context.Context, id uint, req UpdateVehicleRequest) error {
	return c.do(ctx, http.MethodPut, fmt.Sprintf("/api/vehicles/%d", id), req, nil)
}

func (c *Client) DeleteVehicle(ctx context.Context, id uint) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/vehicles/%d", id), nil, nil)
}

func (c *Client) StartSimulation(ctx context.Context, scenario string) (Snapshot, error) {
	var out Snapshot
	err := c.do(ctx, http.MethodPost, "/api/simulations/"+url.PathEscape(scenario)+"/start", nil, &out)
	return out, err
}

func (c *Client) StopSimulation(ctx context.Context, scenario string) error {
	return c.do(ctx, http.MethodPost, "/api/simulations/"+url.PathEscape(scenario)+"/stop", nil, nil)
}

func (c *Client) GetSimulation(ctx context.Context, scenario string) (Snapshot, error) {
	var out Snapshot
	err := c.do(ctx, http.MethodGet, "/api/simulations/"+url.PathEscape(scenario), nil, &out)
	return out, err
}

// Stream opens the snapshot stream for scenario. Snapshots are delivered on the
// returned channel, which is closed when the server ends the stream or ctx is done.
func (c *Client) Stream(ctx context.Context, scenario string) (<-chan Snapshot, error) {
	wsURL := "ws" + strings.TrimPrefix(c.baseURL, "http") + "/api/simulations/" + url.PathEscape(scenario) + "/stream"

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)
			return nil, &StatusError{Status: resp.StatusCode, Message: string(body)}
		}
		return nil, fmt.Errorf("stream dial failed: %w", err)
	}

	out := make(chan Snapshot)
	go func() {
		defer close(out)
		defer conn.Close()

		stop := context.AfterFunc(ctx, func() { conn.Close() })
		defer stop()

		for {
			var snap Snapshot
			if err := conn.ReadJSON(&snap); err != nil {
				return
			}
			select {
			case out <- snap:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s request failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(resp.Body)
		return &StatusError{Status: resp.StatusCode, Message: string(msg)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
