package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWhatsAppWebhookEvent_UserID(t *testing.T) {
	tests := []struct {
		name string
		from string
		want string
	}{
		{"whatsapp prefix stripped", "whatsapp:+5215512345678", "+5215512345678"},
		{"bare number unchanged", "+5215512345678", "+5215512345678"},
		{"empty", "", ""},
		{"prefix only", "whatsapp:", "whatsapp:"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &WhatsAppWebhookEvent{From: tt.from}
			assert.Equal(t, tt.want, e.UserID())
		})
	}
}
