package slack

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"
)

// maxBodyBytes bounds an Events API request body.
const maxBodyBytes = 1 << 20

// signatureTolerance rejects requests whose timestamp is older than
// this, against replay.
const signatureTolerance = 5 * time.Minute

var errBadSignature = errors.New("invalid slack signature")

// WebhookHandler serves POST /slack/events. Requests are verified with
// the signing secret when one is set; everything that verifies is
// acknowledged with {"status":"ok"} before the turn runs.
type WebhookHandler struct {
	ingress       *Ingress
	signingSecret string
	nowFunc       func() time.Time
}

// NewWebhookHandler creates the Events API endpoint.
func NewWebhookHandler(in *Ingress, signingSecret string) *WebhookHandler {
	return &WebhookHandler{ingress: in, signingSecret: signingSecret, nowFunc: time.Now}
}

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}
	if h.signingSecret != "" {
		if err := verify(h.signingSecret, r.Header, body, h.nowFunc()); err != nil {
			h.ingress.logger.Warn("rejected event request", "remote", r.RemoteAddr, "error", err)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if challenge := h.ingress.DispatchJSON(body); challenge != "" {
		json.NewEncoder(w).Encode(map[string]string{"challenge": challenge})
		return
	}
	w.Write([]byte(`{"status":"ok"}`))
}

// verify checks the X-Slack-Signature header: v0= followed by the hex
// HMAC-SHA256 of "v0:<timestamp>:<body>".
func verify(secret string, h http.Header, body []byte, now time.Time) error {
	tsHeader := h.Get("X-Slack-Request-Timestamp")
	ts, err := strconv.ParseInt(tsHeader, 10, 64)
	if err != nil {
		return errBadSignature
	}
	if d := now.Sub(time.Unix(ts, 0)); d > signatureTolerance || d < -signatureTolerance {
		return errors.New("stale slack request timestamp")
	}
	want := sign(secret, tsHeader, body)
	if !hmac.Equal([]byte(want), []byte(h.Get("X-Slack-Signature"))) {
		return errBadSignature
	}
	return nil
}

func sign(secret, ts string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte("v0:" + ts + ":"))
	mac.Write(body)
	return "v0=" + hex.EncodeToString(mac.Sum(nil))
}
