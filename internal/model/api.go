package model

// ChatRequest is the JSON API request body.
type ChatRequest struct {
	Query  string `json:"query" binding:"required"`
	UserID string `json:"user_id,omitempty"`
}

// ChatResponse is the JSON API response body.
type ChatResponse struct {
	Response string `json:"response"`
	UserID   string `json:"user_id,omitempty"`
	Agent    string `json:"agent"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// WhatsAppWebhookEvent is the inbound Twilio form payload.
//
// UserID strips the channel prefix so the same user maps to the same chat
// history regardless of transport.
type WhatsAppWebhookEvent struct {
	MessageSid  string `form:"MessageSid"`
	AccountSid  string `form:"AccountSid"`
	From        string `form:"From" binding:"required"`
	To          string `form:"To"`
	Body        string `form:"Body"`
	ProfileName string `form:"ProfileName"`
	NumMedia    string `form:"NumMedia"`
}

// UserID returns the sender identifier without the "whatsapp:" prefix.
func (e *WhatsAppWebhookEvent) UserID() string {
	const prefix = "whatsapp:"
	if len(e.From) > len(prefix) && e.From[:len(prefix)] == prefix {
		return e.From[len(prefix):]
	}
	return e.From
}
