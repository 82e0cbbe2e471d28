package messaging

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"autoasesor/internal/config"
)

const twilioAPIBase = "https://api.twilio.com/2010-04-01"

// TwiMLResponse is the synchronous webhook acknowledgment document.
type TwiMLResponse struct {
	XMLName xml.Name `xml:"Response"`
	Message string   `xml:"Message,omitempty"`
}

// EncodeTwiML renders the acknowledgment XML, with the declaration header
func EncodeTwiML(message string) ([]byte, error) {
	body, err := xml.Marshal(TwiMLResponse{Message: message})
	if err != nil {
		return nil, fmt.Errorf("failed to encode twiml: %w", err)
	}
	return append([]byte(xml.Header), body...), nil
}

// TwilioClient sends outbound WhatsApp messages through the Twilio REST
// messages API.
type TwilioClient struct {
	cfg        config.TwilioConfig
	httpClient *http.Client
	logger     *zap.Logger
}

// NewTwilioClient creates the outbound message sender
func NewTwilioClient(cfg config.TwilioConfig, logger *zap.Logger) *TwilioClient {
	return &TwilioClient{
		cfg:    cfg,
		logger: logger,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// IsEnabled returns whether credentials are configured
func (c *TwilioClient) IsEnabled() bool {
	return c.cfg.Enabled
}

// SendWhatsApp delivers a message to a WhatsApp user. to is the bare
// number; the whatsapp: prefix is added when missing.
func (c *TwilioClient) SendWhatsApp(ctx context.Context, to, body string) error {
	if !c.cfg.Enabled {
		return fmt.Errorf("twilio client is not configured")
	}

	if !strings.HasPrefix(to, "whatsapp:") {
		to = "whatsapp:" + to
	}

	form := url.Values{}
	form.Set("From", c.cfg.FromNumber)
	form.Set("To", to)
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", twilioAPIBase, c.cfg.AccountSID)
	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.cfg.AccountSID, c.cfg.AuthToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("twilio API returned status %d: %s", resp.StatusCode, string(respBody))
	}

	c.logger.Info("whatsapp message sent", zap.String("to", to), zap.Int("chars", len(body)))
	return nil
}
