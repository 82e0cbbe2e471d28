package messaging

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"autoasesor/internal/config"
)

func TestEncodeTwiML(t *testing.T) {
	t.Run("with message", func(t *testing.T) {
		got, err := EncodeTwiML("Gracias por tu mensaje, lo estamos procesando.")
		require.NoError(t, err)

		s := string(got)
		assert.True(t, strings.HasPrefix(s, "<?xml"))
		assert.Contains(t, s, "<Response>")
		assert.Contains(t, s, "<Message>Gracias por tu mensaje, lo estamos procesando.</Message>")
	})

	t.Run("empty ack", func(t *testing.T) {
		got, err := EncodeTwiML("")
		require.NoError(t, err)

		s := string(got)
		assert.Contains(t, s, "<Response></Response>")
		assert.NotContains(t, s, "<Message>")
	})

	t.Run("escapes markup", func(t *testing.T) {
		got, err := EncodeTwiML("precio < 300000")
		require.NoError(t, err)
		assert.Contains(t, string(got), "precio &lt; 300000")
	})
}

func TestSendWhatsApp_Disabled(t *testing.T) {
	c := NewTwilioClient(config.TwilioConfig{}, zap.NewNop())
	assert.False(t, c.IsEnabled())

	err := c.SendWhatsApp(context.Background(), "+5215512345678", "hola")
	assert.Error(t, err)
}

func TestSendWhatsApp(t *testing.T) {
	var received struct {
		path string
		form map[string]string
		auth bool
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		received.path = r.URL.Path
		received.form = map[string]string{
			"From": r.PostForm.Get("From"),
			"To":   r.PostForm.Get("To"),
			"Body": r.PostForm.Get("Body"),
		}
		user, pass, ok := r.BasicAuth()
		received.auth = ok && user == "AC123" && pass == "secret"
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := NewTwilioClient(config.TwilioConfig{
		AccountSID: "AC123",
		AuthToken:  "secret",
		FromNumber: "whatsapp:+14155238886",
		Enabled:    true,
	}, zap.NewNop())
	c.httpClient = srv.Client()

	// Point the request at the test server by rewriting the host
	c.httpClient.Transport = rewriteHost(srv.URL)

	err := c.SendWhatsApp(context.Background(), "+5215512345678", "Tu plan de financiamiento está listo")
	require.NoError(t, err)

	assert.Equal(t, "/2010-04-01/Accounts/AC123/Messages.json", received.path)
	assert.Equal(t, "whatsapp:+5215512345678", received.form["To"])
	assert.Equal(t, "whatsapp:+14155238886", received.form["From"])
	assert.True(t, received.auth)
}

func TestSendWhatsApp_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message": "Authentication Error"}`))
	}))
	defer srv.Close()

	c := NewTwilioClient(config.TwilioConfig{
		AccountSID: "AC123",
		AuthToken:  "wrong",
		FromNumber: "whatsapp:+14155238886",
		Enabled:    true,
	}, zap.NewNop())
	c.httpClient = srv.Client()
	c.httpClient.Transport = rewriteHost(srv.URL)

	err := c.SendWhatsApp(context.Background(), "+5215512345678", "hola")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

// rewriteHost redirects every outgoing request to the test server.
func rewriteHost(target string) http.RoundTripper {
	return roundTripFunc(func(req *http.Request) (*http.Response, error) {
		u := strings.TrimPrefix(target, "http://")
		req.URL.Scheme = "http"
		req.URL.Host = u
		return http.DefaultTransport.RoundTrip(req)
	})
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}
