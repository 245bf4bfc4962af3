package sms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dernekpro/backend/internal/config"
)

// TwilioProvider sends messages through the Twilio REST API.
type TwilioProvider struct {
	client     *http.Client
	accountSID string
	authToken  string
	from       string
	baseURL    string
}

func NewTwilioProvider(cfg *config.SMSConfig) (*TwilioProvider, error) {
	if cfg.TwilioAccountSID == "" || cfg.TwilioAuthToken == "" || cfg.TwilioFrom == "" {
		return nil, errors.New("missing Twilio config: TWILIO_ACCOUNT_SID/TWILIO_AUTH_TOKEN/TWILIO_FROM")
	}
	return &TwilioProvider{
		client:     &http.Client{Timeout: 15 * time.Second},
		accountSID: cfg.TwilioAccountSID,
		authToken:  cfg.TwilioAuthToken,
		from:       cfg.TwilioFrom,
		baseURL:    "https://api.twilio.com/2010-04-01",
	}, nil
}

func (p *TwilioProvider) Name() string {
	return ProviderTwilio
}

func (p *TwilioProvider) SendSingle(ctx context.Context, to, message string) SendResult {
	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", p.baseURL, p.accountSID)

	form := url.Values{}
	form.Set("To", to)
	form.Set("From", p.from)
	form.Set("Body", message)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return SendResult{Success: false, Provider: p.Name(), Error: err.Error()}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(p.accountSID, p.authToken)

	resp, err := p.client.Do(req)
	if err != nil {
		return SendResult{Success: false, Provider: p.Name(), Error: err.Error()}
	}
	defer resp.Body.Close()

	var body struct {
		SID     string `json:"sid"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return SendResult{Success: false, Provider: p.Name(), Error: err.Error()}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errMsg := body.Message
		if errMsg == "" {
			errMsg = fmt.Sprintf("twilio returned status %d", resp.StatusCode)
		}
		return SendResult{Success: false, Provider: p.Name(), Error: errMsg}
	}

	return SendResult{Success: true, Provider: p.Name(), ProviderMessageID: body.SID}
}

func (p *TwilioProvider) SendBulk(ctx context.Context, to []string, message string) []SendResult {
	// Twilio has no true bulk endpoint; fan out sequentially.
	results := make([]SendResult, 0, len(to))
	for _, phone := range to {
		results = append(results, p.SendSingle(ctx, phone, message))
	}
	return results
}
