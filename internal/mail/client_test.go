package mail

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/st20medic/trucks/internal/config"
)

func testClient(url string) *Client {
	return NewClient(&config.Config{
		MailAPIURL:        url,
		MailAPIKey:        "test-key",
		MailFromAddress:   "fleet@st20medic.org",
		MailFromName:      "Fleet Maintenance",
		MailReplyTo:       "shop@st20medic.org",
		MailRatePerMinute: 600,
	})
}

func testMessage() Message {
	return Message{
		To:       "duty@example.org",
		ToName:   "Duty Officer",
		Subject:  "Fleet maintenance: 1 vehicle(s) need attention",
		HTMLBody: "<html><body>digest</body></html>",
	}
}

func TestSendSuccess(t *testing.T) {
	var gotAuth string
	var gotPayload map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/mail/send", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
		w.Header().Set("X-Message-Id", "abc-123")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	id, err := testClient(srv.URL).Send(context.Background(), testMessage())
	require.NoError(t, err)
	assert.Equal(t, "abc-123", id)
	assert.Equal(t, "Bearer test-key", gotAuth)

	from := gotPayload["from"].(map[string]interface{})
	assert.Equal(t, "fleet@st20medic.org", from["email"])
	replyTo := gotPayload["reply_to"].(map[string]interface{})
	assert.Equal(t, "shop@st20medic.org", replyTo["email"])
	assert.Equal(t, "Fleet maintenance: 1 vehicle(s) need attention", gotPayload["subject"])
}

func TestSendAuthFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Send(context.Background(), testMessage())
	assert.ErrorIs(t, err, ErrAuth)
}

func TestSendMissingAPIKeyIsAuthFailure(t *testing.T) {
	c := testClient("http://localhost:0")
	c.apiKey = ""
	_, err := c.Send(context.Background(), testMessage())
	assert.ErrorIs(t, err, ErrAuth)
}

func TestSendRecipientRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"errors":[{"message":"does not contain a valid address"}]}`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Send(context.Background(), testMessage())
	var rejected *RejectedError
	require.True(t, errors.As(err, &rejected))
	assert.Equal(t, "duty@example.org", rejected.To)
	assert.Equal(t, http.StatusBadRequest, rejected.Status)
	assert.Contains(t, rejected.Reason, "valid address")
	assert.False(t, errors.Is(err, ErrAuth))
}

func TestSendChannelErrorIsSoft(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Send(context.Background(), testMessage())
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrAuth))
	var rejected *RejectedError
	assert.False(t, errors.As(err, &rejected))
}
