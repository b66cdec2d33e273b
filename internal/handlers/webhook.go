package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
)

const maxWebhookBytes = 64 << 10

type webhookRequest struct {
	ConnectionID string `json:"connection_id"`
	EventType    string `json:"event_type"`
}

// ProviderWebhook accepts asynchronous provider notifications. The payload
// is only trusted after its HMAC signature checks out against the shared
// webhook secret.
func (h *Handler) ProviderWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, "unable to read payload")
		return
	}
	if !validSignature(h.cfg.WebhookSecret, body, r.Header.Get("X-Provider-Signature")) {
		respondError(w, http.StatusUnauthorized, "invalid signature")
		return
	}
	var req webhookRequest
	if err := json.Unmarshal(body, &req); err != nil || req.ConnectionID == "" {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if err := h.scheduler.TriggerConnection(r.Context(), req.ConnectionID, req.EventType); err != nil {
		respondError(w, http.StatusInternalServerError, "unable to process webhook")
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func validSignature(secret string, body []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
