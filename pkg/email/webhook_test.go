package email

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWebhookDelivererSignsAndPosts(t *testing.T) {
	var gotBody []byte
	var gotSig string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		gotSig = r.Header.Get("X-Signature-256")
		var err error
		gotBody, err = io.ReadAll(r.Body)
		require.NoError(t, err)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	d := NewWebhookDeliverer(srv.URL, "hunter2")
	require.Equal(t, "webhook", d.Name())

	err := d.Deliver(context.Background(), &Message{
		CampaignID: 3,
		To:         "reader@example.com",
		Subject:    "Your Weekly Solutions Stories",
		HTML:       "<html>hi</html>",
	})
	require.NoError(t, err)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(gotBody, &payload))
	require.EqualValues(t, 3, payload["campaign_id"])
	require.Equal(t, "reader@example.com", payload["to"])
	require.Equal(t, "<html>hi</html>", payload["html"])

	mac := hmac.New(sha256.New, []byte("hunter2"))
	mac.Write(gotBody)
	require.Equal(t, "sha256="+hex.EncodeToString(mac.Sum(nil)), gotSig)
}

func TestWebhookDelivererRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	d := NewWebhookDeliverer(srv.URL, "")
	err := d.Deliver(context.Background(), &Message{To: "reader@example.com"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "status 502")
}
