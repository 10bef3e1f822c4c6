package callcontrol

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/troikatech/voice-orchestrator/pkg/logger"
	"github.com/troikatech/voice-orchestrator/pkg/retry"
)

// ProviderClient is the surface of the call-control provider the adapter
// needs. Satisfied by Client; faked in tests.
type ProviderClient interface {
	CreateCall(ctx context.Context, req CreateCallRequest) (*CreateCallResponse, error)
	UpdateCall(ctx context.Context, correlationID string, req UpdateCallRequest) error
}

// Client performs REST calls against the voice provider's call API.
type Client struct {
	baseURL    string
	apiKey     string
	apiSecret  string
	httpClient *http.Client
	log        *zap.Logger
}

func NewClient(baseURL, apiKey, apiSecret string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        logger.Log,
	}
}

// CreateCallRequest places a new outbound call leg.
type CreateCallRequest struct {
	To               []Endpoint    `json:"to"`
	From             Endpoint      `json:"from"`
	AnswerURL        []string      `json:"answer_url"`
	EventURL         []string      `json:"event_url"`
	MachineDetection string        `json:"machine_detection,omitempty"`
	NCCO             Instructions  `json:"ncco,omitempty"`
}

type CreateCallResponse struct {
	UUID      string `json:"uuid"`
	Status    string `json:"status"`
	Direction string `json:"direction"`
}

// UpdateCallRequest steers a live call: hang up, start a recording, or
// replace the current instruction flow (transfer).
type UpdateCallRequest struct {
	Action      string       `json:"action"`
	Destination Instructions `json:"destination,omitempty"`
}

func (c *Client) CreateCall(ctx context.Context, req CreateCallRequest) (*CreateCallResponse, error) {
	var result CreateCallResponse
	err := retry.Do(ctx, retry.DefaultConfig(), func() error {
		return c.doJSON(ctx, http.MethodPost, c.baseURL+"/v1/calls", req, &result)
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) UpdateCall(ctx context.Context, correlationID string, req UpdateCallRequest) error {
	endpoint := fmt.Sprintf("%s/v1/calls/%s", c.baseURL, correlationID)
	return c.doJSON(ctx, http.MethodPut, endpoint, req, nil)
}

func (c *Client) doJSON(ctx context.Context, method, endpoint string, body, out interface{}) error {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.SetBasicAuth(c.apiKey, c.apiSecret)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("voice API error: %s (status %d)", string(respBody), resp.StatusCode)
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}

	return nil
}
