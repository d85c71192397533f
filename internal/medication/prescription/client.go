package prescription

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/medflow/medication-ledger/internal/medication/domain"
	"github.com/medflow/medication-ledger/pkg/actor"
	"github.com/medflow/medication-ledger/pkg/errors"
	"github.com/medflow/medication-ledger/pkg/httputil"
	"github.com/medflow/medication-ledger/pkg/logger"
)

// Client calls the prescription service over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logger.Logger
}

// NewClient creates a prescription service client
func NewClient(baseURL string, log *logger.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     log,
	}
}

// Get fetches one prescription.
func (c *Client) Get(ctx context.Context, id string) (*domain.Prescription, error) {
	var p domain.Prescription
	if err := c.get(ctx, "/api/v1/prescriptions/"+url.PathEscape(id), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListForResident fetches every prescription of a resident, active or not.
func (c *Client) ListForResident(ctx context.Context, residentID string) ([]domain.Prescription, error) {
	out := []domain.Prescription{}
	path := "/api/v1/prescriptions?resident_id=" + url.QueryEscape(residentID)
	if err := c.get(ctx, path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, path string, target interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	// Forward caller identity so the prescription service can audit reads
	if a := actor.FromContext(ctx); a != nil {
		req.Header.Set("X-User-ID", a.ID)
		if a.Email != "" {
			req.Header.Set("X-User-Email", a.Email)
		}
	}
	if requestID := httputil.GetRequestID(ctx); requestID != "" {
		req.Header.Set("X-Request-ID", requestID)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error().Err(err).Str("path", path).Msg("failed to call prescription service")
		return fmt.Errorf("failed to call prescription service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return errors.NotFound("prescription")
	}
	if resp.StatusCode != http.StatusOK {
		var errResp map[string]interface{}
		json.NewDecoder(resp.Body).Decode(&errResp)
		c.logger.Error().
			Int("status", resp.StatusCode).
			Interface("error", errResp).
			Str("path", path).
			Msg("prescription lookup failed")
		return fmt.Errorf("prescription lookup failed with status %d", resp.StatusCode)
	}

	// The prescription service wraps payloads in {"success": true, "data": ...}
	var envelope struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if err := json.Unmarshal(envelope.Data, target); err != nil {
		return fmt.Errorf("failed to decode prescription: %w", err)
	}
	return nil
}
