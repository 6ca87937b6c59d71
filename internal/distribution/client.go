package distribution

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"telecrm_backend/internal/telecaller/transport"
	"telecrm_backend/platform/apperr"
	"telecrm_backend/platform/config"
	"telecrm_backend/platform/httpkit"
	"telecrm_backend/platform/logger"

	"github.com/google/uuid"
)

// TelecallerClient is the command/response surface the coordinator needs from
// the telecaller service.
type TelecallerClient interface {
	Validate(ctx context.Context, telecallerID uuid.UUID) (transport.ValidateResponse, error)
	AssignLead(ctx context.Context, telecallerID, leadID uuid.UUID) (transport.AssignLeadResponse, error)
	SmartAssign(ctx context.Context, leadIDs []uuid.UUID) (transport.SmartAssignResponse, error)
	GetLeads(ctx context.Context, telecallerID uuid.UUID) (transport.TelecallerLeadsResponse, error)
	GetTelecaller(ctx context.Context, telecallerID uuid.UUID) (transport.TelecallerResponse, error)
	Ping(ctx context.Context) error
}

// HTTPClient talks to the telecaller service's internal RPC surface.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	log        *logger.Logger
}

// NewHTTPClient creates a telecaller service client with a bounded timeout on
// every call.
func NewHTTPClient(cfg config.TelecallerServiceConfig, log *logger.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL:    cfg.GetTelecallerServiceURL(),
		httpClient: &http.Client{Timeout: cfg.GetRemoteCallTimeout()},
		log:        log,
	}
}

func (c *HTTPClient) Validate(ctx context.Context, telecallerID uuid.UUID) (transport.ValidateResponse, error) {
	var resp transport.ValidateResponse
	err := c.do(ctx, http.MethodGet,
		fmt.Sprintf("/internal/v1/telecallers/%s/validate", telecallerID), nil, &resp)
	return resp, err
}

func (c *HTTPClient) AssignLead(ctx context.Context, telecallerID, leadID uuid.UUID) (transport.AssignLeadResponse, error) {
	var resp transport.AssignLeadResponse
	err := c.do(ctx, http.MethodPost,
		fmt.Sprintf("/internal/v1/telecallers/%s/assign-lead", telecallerID),
		transport.AssignLeadRequest{LeadID: leadID}, &resp)
	return resp, err
}

func (c *HTTPClient) SmartAssign(ctx context.Context, leadIDs []uuid.UUID) (transport.SmartAssignResponse, error) {
	var resp transport.SmartAssignResponse
	err := c.do(ctx, http.MethodPost,
		"/internal/v1/telecallers/smart-assign",
		transport.SmartAssignRequest{LeadIDs: leadIDs}, &resp)
	return resp, err
}

func (c *HTTPClient) GetLeads(ctx context.Context, telecallerID uuid.UUID) (transport.TelecallerLeadsResponse, error) {
	var resp transport.TelecallerLeadsResponse
	err := c.do(ctx, http.MethodGet,
		fmt.Sprintf("/internal/v1/telecallers/%s/leads", telecallerID), nil, &resp)
	return resp, err
}

// GetTelecaller fetches a telecaller's full contact record.
func (c *HTTPClient) GetTelecaller(ctx context.Context, telecallerID uuid.UUID) (transport.TelecallerResponse, error) {
	var resp transport.TelecallerResponse
	err := c.do(ctx, http.MethodGet,
		fmt.Sprintf("/internal/v1/telecallers/%s", telecallerID), nil, &resp)
	return resp, err
}

// Ping hits the telecaller service liveness probe.
func (c *HTTPClient) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return apperr.Wrap(apperr.KindInternal, "encode request", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "build request", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		c.log.RemoteCallError("telecaller", method+" "+path, err)
		return apperr.Wrap(apperr.KindUnavailable, "telecaller service unreachable", err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 400 {
		var remoteErr httpkit.ErrorResponse
		_ = json.NewDecoder(res.Body).Decode(&remoteErr)
		return remoteStatusError(res.StatusCode, remoteErr.Error)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return apperr.Wrap(apperr.KindUnavailable, "decode telecaller response", err)
	}
	return nil
}

// remoteStatusError translates the telecaller service's HTTP statuses back
// into the domain error taxonomy.
func remoteStatusError(status int, message string) error {
	if message == "" {
		message = http.StatusText(status)
	}
	switch status {
	case http.StatusNotFound:
		return apperr.NotFound(message)
	case http.StatusConflict:
		return apperr.Conflict(message)
	case http.StatusUnprocessableEntity:
		return apperr.Unprocessable(message)
	case http.StatusBadRequest:
		return apperr.BadRequest(message)
	default:
		return apperr.Unavailable(message)
	}
}
