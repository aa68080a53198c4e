package system

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ValentinKolb/dCtl/api"
	"github.com/ValentinKolb/dCtl/lib/errs"
	"github.com/klauspost/compress/gzip"
)

// License server commands
const (
	CommandPerformActivation = "perform_activation"
	CommandValidateCreation  = "validate_creation"
)

// ActivationRequest is the body sent to the license server
type ActivationRequest struct {
	Code       string                 `json:"code"`
	Email      string                 `json:"Business Email,omitempty"`
	SystemInfo map[string]interface{} `json:"system_info,omitempty"`
}

// LicenseClient talks to the license server. Call returns the reply body
// and fails with EXTERNAL_DEPENDENCY when the server is unreachable or
// refuses the request.
type LicenseClient interface {
	Call(ctx context.Context, command string, req ActivationRequest) (string, error)
}

// HTTPLicenseClient posts requests to <BaseURL>/<command>
type HTTPLicenseClient struct {
	BaseURL string
	client  *http.Client
}

// NewHTTPLicenseClient creates a license client. insecure disables the
// verification of the server certificate.
func NewHTTPLicenseClient(baseURL string, timeout time.Duration, insecure bool) *HTTPLicenseClient {
	return &HTTPLicenseClient{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 90 * time.Second,
				// the transport only decompresses when it set the header itself
				DisableCompression: true,
				TLSClientConfig:    &tls.Config{InsecureSkipVerify: insecure},
			},
		},
	}
}

func (c *HTTPLicenseClient) Call(ctx context.Context, command string, req ActivationRequest) (string, error) {
	op := "license." + command
	req.Code = strings.TrimSpace(req.Code)
	req.Email = strings.TrimSpace(req.Email)
	if command != CommandPerformActivation {
		req.SystemInfo = nil
	}
	body, err := json.Marshal(req)
	if err != nil {
		return "", errs.Wrap(errs.Internal, op, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/"+command, bytes.NewReader(body))
	if err != nil {
		return "", errs.Wrap(errs.Internal, op, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept-Encoding", "gzip")

	log.Infof("sending %s to the license server", command)
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", errs.Wrap(errs.ExternalDependency, op, err)
	}
	defer resp.Body.Close()

	var r io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return "", errs.Wrap(errs.ExternalDependency, op, err)
		}
		defer gz.Close()
		r = gz
	}
	reply, err := io.ReadAll(r)
	if err != nil {
		return "", errs.Wrap(errs.ExternalDependency, op, err)
	}
	log.Infof("license server answered %s with %d", command, resp.StatusCode)
	if resp.StatusCode != http.StatusOK {
		return "", errs.New(errs.ExternalDependency, op, "%s", strings.TrimSpace(string(reply)))
	}
	return string(reply), nil
}

// ValidateActivation checks an activation code. A refused code is a valid
// reply with a reason, not an error.
func (s *Service) ValidateActivation(ctx context.Context, p *api.ActivationParams) (*api.ActivationReply, error) {
	if s.cfg.DevMode || s.license == nil {
		return &api.ActivationReply{Valid: true}, nil
	}
	if _, err := s.license.Call(ctx, CommandValidateCreation, ActivationRequest{Code: p.Code, Email: p.Email}); err != nil {
		reason := err.Error()
		var e *errs.Error
		if errors.As(err, &e) && e.Msg != "" {
			reason = e.Msg
		}
		return &api.ActivationReply{Valid: false, Reason: reason}, nil
	}
	return &api.ActivationReply{Valid: true}, nil
}
