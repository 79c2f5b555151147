// Package triggers implements Trigger Ingest (C8): the webhook and email
// entrypoints that turn an external event into a published TRIGGER_FIRED
// (spec §4.8).
package triggers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/orchcore/orchcore/internal/common/constants"
	"github.com/orchcore/orchcore/internal/common/logger"
	"github.com/orchcore/orchcore/internal/domain"
	"github.com/orchcore/orchcore/internal/events"
	"github.com/orchcore/orchcore/internal/events/bus"
)

// TriggerGetter is the subset of C1's TriggerRepository the webhook handler
// needs.
type TriggerGetter interface {
	Get(ctx context.Context, id string) (*domain.Trigger, error)
}

// WebhookHandler implements the webhook trigger entrypoint (spec §4.8):
// HMAC-SHA256 signature verification, constant-time comparison, a hard
// pre-hash body size cap, and status-code mapping.
type WebhookHandler struct {
	triggers TriggerGetter
	bus      bus.EventBus
	log      *logger.Logger
}

// NewWebhookHandler constructs a WebhookHandler.
func NewWebhookHandler(triggers TriggerGetter, eventBus bus.EventBus, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{triggers: triggers, bus: eventBus, log: log.WithFields(zap.String("component", "webhook_ingest"))}
}

// ServeHTTP handles POST /api/triggers/{id}/events (spec §4.8, §6).
//
// Status mapping: 202 on accepted, 400 on malformed body, 401 on signature
// mismatch, 404 on unknown trigger id, 413 on oversized body.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request, triggerID string) {
	ctx := r.Context()

	trig, err := h.triggers.Get(ctx, triggerID)
	if err != nil || trig.Type != domain.TriggerTypeWebhook {
		writeStatus(w, http.StatusNotFound, "trigger not found")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, constants.WebhookMaxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeStatus(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	if !verifySignature(trig.Secret, body, r.Header.Get("X-Signature")) {
		writeStatus(w, http.StatusUnauthorized, "signature mismatch")
		return
	}

	var payload map[string]any
	if len(body) > 0 {
		if err := json.Unmarshal(body, &payload); err != nil {
			writeStatus(w, http.StatusBadRequest, "malformed JSON body")
			return
		}
	}

	evt := &events.Event{Kind: events.TriggerFired, Data: events.PayloadTrigger{
		TriggerID: trig.ID,
		AgentID:   trig.AgentID,
		Payload:   payload,
	}}
	if err := h.bus.Publish(ctx, evt); err != nil {
		h.log.Error("publish trigger_fired failed", zap.String("trigger_id", trig.ID), zap.Error(err))
	}

	writeStatus(w, http.StatusAccepted, "accepted")
}

// verifySignature checks an HMAC-SHA256 hex signature over body using a
// constant-time comparison.
func verifySignature(secret string, body []byte, sigHeader string) bool {
	if sigHeader == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return subtle.ConstantTimeCompare([]byte(expected), []byte(sigHeader)) == 1
}

func writeStatus(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": msg})
}
