package telephony

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"dialer-platform/internal/config"
)

const twilioAPIBase = "https://api.twilio.com/2010-04-01"

// TwilioAdapter places outbound calls over the Twilio REST API.
// It uses the plain HTTP API (form-encoded), not the SDK, keeping the
// dependency surface at the adapter boundary only.
type TwilioAdapter struct {
	accountSID string
	authToken  string

	// callbackBase is the public base URL for answer/gather/status webhooks.
	callbackBase string

	httpClient *http.Client
	apiBase    string
}

func NewTwilioAdapter(cfg config.TwilioConfig) (*TwilioAdapter, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, errors.New("telephony: twilio account sid and auth token are required")
	}
	return &TwilioAdapter{
		accountSID:   cfg.AccountSID,
		authToken:    cfg.AuthToken,
		callbackBase: strings.TrimRight(cfg.StatusCallbackURL, "/"),
		httpClient:   &http.Client{Timeout: 15 * time.Second},
		apiBase:      twilioAPIBase,
	}, nil
}

func (a *TwilioAdapter) Name() string { return "twilio" }

func (a *TwilioAdapter) HealthCheck(ctx context.Context) error {
	// Fetch the account resource; cheapest authenticated call.
	endpoint := fmt.Sprintf("%s/Accounts/%s.json", a.apiBase, a.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.SetBasicAuth(a.accountSID, a.authToken)
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return &ProviderError{Provider: "twilio", Op: "health_check", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return &ProviderError{Provider: "twilio", Op: "health_check", Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	return nil
}

func (a *TwilioAdapter) PlaceCall(ctx context.Context, req PlaceCallRequest) (PlaceCallResult, error) {
	if req.From == "" || req.To == "" {
		return PlaceCallResult{}, errors.New("telephony: from and to are required")
	}
	if a.callbackBase == "" {
		return PlaceCallResult{}, errors.New("telephony: status callback base url not configured")
	}

	to := req.To
	if req.TrunkURI != "" {
		// Trunk routing: dial the destination through the configured SIP trunk.
		to = fmt.Sprintf("sip:%s@%s", strings.TrimPrefix(req.To, "+"), strings.TrimPrefix(req.TrunkURI, "sip:"))
	}

	form := url.Values{}
	form.Set("From", req.From)
	form.Set("To", to)
	form.Set("Url", a.webhookURL("/webhooks/twilio/answer", req.ItemID))
	form.Set("StatusCallback", a.webhookURL("/webhooks/twilio/status", req.ItemID))
	form.Set("StatusCallbackEvent", "completed")
	if req.AMD.Enabled {
		form.Set("MachineDetection", "Enable")
	}

	var out struct {
		Sid    string `json:"sid"`
		Status string `json:"status"`
	}
	if err := a.postForm(ctx, fmt.Sprintf("/Accounts/%s/Calls.json", a.accountSID), form, &out); err != nil {
		return PlaceCallResult{}, &ProviderError{Provider: "twilio", Op: "place_call", Err: err}
	}
	if out.Sid == "" {
		return PlaceCallResult{}, &ProviderError{Provider: "twilio", Op: "place_call", Err: errors.New("empty call sid")}
	}
	return PlaceCallResult{ProviderCallID: out.Sid}, nil
}

func (a *TwilioAdapter) GetCallStatus(ctx context.Context, providerCallID string) (CallState, error) {
	if providerCallID == "" {
		return CallStateUnknown, errors.New("telephony: provider call id required")
	}
	endpoint := fmt.Sprintf("%s/Accounts/%s/Calls/%s.json", a.apiBase, a.accountSID, providerCallID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return CallStateUnknown, err
	}
	req.SetBasicAuth(a.accountSID, a.authToken)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return CallStateUnknown, &ProviderError{Provider: "twilio", Op: "get_call_status", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return CallStateUnknown, &ProviderError{Provider: "twilio", Op: "get_call_status", Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	var out struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return CallStateUnknown, &ProviderError{Provider: "twilio", Op: "get_call_status", Err: err}
	}
	return MapTwilioCallStatus(out.Status), nil
}

func (a *TwilioAdapter) Hangup(ctx context.Context, providerCallID string) error {
	if providerCallID == "" {
		return errors.New("telephony: provider call id required")
	}
	form := url.Values{}
	form.Set("Status", "completed")
	if err := a.postForm(ctx, fmt.Sprintf("/Accounts/%s/Calls/%s.json", a.accountSID, providerCallID), form, nil); err != nil {
		return &ProviderError{Provider: "twilio", Op: "hangup", Err: err}
	}
	return nil
}

func (a *TwilioAdapter) postForm(ctx context.Context, path string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.apiBase+path, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(a.accountSID, a.authToken)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (a *TwilioAdapter) webhookURL(path, itemID string) string {
	return fmt.Sprintf("%s%s?item_id=%s", a.callbackBase, path, url.QueryEscape(itemID))
}

// MapTwilioCallStatus normalizes Twilio call status strings.
// Ref: https://www.twilio.com/docs/voice/api/call-resource#call-status-values
func MapTwilioCallStatus(s string) CallState {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "queued", "initiated":
		return CallStateQueued
	case "ringing":
		return CallStateRinging
	case "in-progress":
		return CallStateInProgress
	case "completed":
		return CallStateCompleted
	case "busy":
		return CallStateBusy
	case "no-answer":
		return CallStateNoAnswer
	case "failed":
		return CallStateFailed
	case "canceled":
		return CallStateCanceled
	default:
		return CallStateUnknown
	}
}

// MapTwilioAnsweredBy normalizes Twilio AMD results to human/machine/unknown.
func MapTwilioAnsweredBy(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "human":
		return AnsweredByHuman
	case "machine_start", "machine_end_beep", "machine_end_silence", "machine_end_other", "fax":
		return AnsweredByMachine
	default:
		return AnsweredByUnknown
	}
}
