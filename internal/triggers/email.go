package triggers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/orchcore/orchcore/internal/common/constants"
	"github.com/orchcore/orchcore/internal/common/logger"
	"github.com/orchcore/orchcore/internal/domain"
	"github.com/orchcore/orchcore/internal/events"
	"github.com/orchcore/orchcore/internal/events/bus"
)

// pushNotification is the Gmail Pub/Sub push envelope: a base64 JSON blob
// of {emailAddress, historyId} wrapped in {message:{data}}.
type pushNotification struct {
	Message struct {
		Data       string `json:"data"`
		MessageID  string `json:"messageId"`
		PublishTime string `json:"publishTime"`
	} `json:"message"`
}

type gmailHistoryEvent struct {
	EmailAddress string `json:"emailAddress"`
	HistoryID    uint64 `json:"historyId"`
}

// EmailTriggerStore is the subset of C1's TriggerRepository the email
// ingest needs.
type EmailTriggerStore interface {
	GetByEmailAddress(ctx context.Context, emailAddress string) (*domain.Trigger, error)
	ListEmailDue(ctx context.Context, before time.Time) ([]*domain.Trigger, error)
	UpdateEmailCursor(ctx context.Context, id, historyID, lastMessageKey string, watchExpiry *time.Time) error
}

// WatchRenewer renews a Gmail watch for an agent's mailbox, returning the
// new expiry. Implemented by whatever Gmail API client the deployment
// wires in; kept abstract here since the wire protocol to Gmail itself is
// out of this module's scope.
type WatchRenewer func(ctx context.Context, trig *domain.Trigger) (watchExpiry time.Time, err error)

// EmailHandler implements the email trigger entrypoint (spec §4.8): Gmail
// push ingest with provider-JWT validation, dedup by message key, and a
// background watch-renewal ticker. Each accepted push stores its history id
// as the trigger's cursor and publishes one TRIGGER_FIRED carrying that id;
// the mailbox history is not fetched or diffed, and no sender, subject or
// label filters are applied.
type EmailHandler struct {
	triggers EmailTriggerStore
	bus      bus.EventBus
	verifier *jwtVerifier
	renew    WatchRenewer
	log      *logger.Logger
}

// NewEmailHandler constructs an EmailHandler. audience/issuer bind the
// expected `aud`/`iss` claims for Google's push-endpoint JWTs; keyFunc
// resolves the signing key per token (typically Google's JWKS); validMethods
// restricts accepted signing algorithms (Google's push tokens use RS256).
func NewEmailHandler(triggers EmailTriggerStore, eventBus bus.EventBus, audience, issuer string, keyFunc jwt.Keyfunc, validMethods []string, renew WatchRenewer, log *logger.Logger) *EmailHandler {
	return &EmailHandler{
		triggers: triggers,
		bus:      eventBus,
		verifier: &jwtVerifier{audience: audience, issuer: issuer, keyFunc: keyFunc, validMethods: validMethods},
		renew:    renew,
		log:      log.WithFields(zap.String("component", "email_ingest")),
	}
}

// ServeHTTP handles POST /api/email/webhook/google: one fixed URL shared by
// every mailbox's watch (spec §4.8, §6), so the trigger is resolved from
// the decoded push payload's emailAddress rather than a path parameter.
func (h *EmailHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.verifier.verify(r); err != nil {
		writeStatus(w, http.StatusUnauthorized, "invalid push token")
		return
	}

	var push pushNotification
	if err := json.NewDecoder(io.LimitReader(r.Body, constants.WebhookMaxBodyBytes)).Decode(&push); err != nil {
		writeStatus(w, http.StatusBadRequest, "malformed push envelope")
		return
	}
	raw, err := base64.StdEncoding.DecodeString(push.Message.Data)
	if err != nil {
		writeStatus(w, http.StatusBadRequest, "malformed push data")
		return
	}
	var histEvt gmailHistoryEvent
	if err := json.Unmarshal(raw, &histEvt); err != nil {
		writeStatus(w, http.StatusBadRequest, "malformed history event")
		return
	}

	trig, err := h.triggers.GetByEmailAddress(ctx, histEvt.EmailAddress)
	if err != nil {
		writeStatus(w, http.StatusNotFound, "trigger not found")
		return
	}

	// Dedup: Gmail push delivery is at-least-once; a repeated message id
	// for a cursor we've already advanced past is a no-op, not an error.
	newKey := push.Message.MessageID
	if newKey != "" && newKey == trig.LastMessageKey {
		writeStatus(w, http.StatusAccepted, "duplicate, already processed")
		return
	}

	historyID := fmt.Sprintf("%d", histEvt.HistoryID)
	if err := h.triggers.UpdateEmailCursor(ctx, trig.ID, historyID, newKey, nil); err != nil {
		h.log.Error("update email cursor failed", zap.String("trigger_id", trig.ID), zap.Error(err))
		writeStatus(w, http.StatusInternalServerError, "cursor update failed")
		return
	}

	evt := &events.Event{Kind: events.TriggerFired, Data: events.PayloadTrigger{
		TriggerID: trig.ID,
		AgentID:   trig.AgentID,
		Payload: map[string]any{
			"email_address": histEvt.EmailAddress,
			"history_id":    historyID,
		},
	}}
	if err := h.bus.Publish(ctx, evt); err != nil {
		h.log.Error("publish trigger_fired failed", zap.String("trigger_id", trig.ID), zap.Error(err))
	}

	writeStatus(w, http.StatusAccepted, "accepted")
}

// RunWatchRenewal runs until ctx is cancelled, renewing any email trigger's
// Gmail watch once less than WatchRenewalThreshold remains before expiry
// (spec §4.8).
func (h *EmailHandler) RunWatchRenewal(ctx context.Context) {
	ticker := time.NewTicker(constants.WatchRenewalCheckPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.renewDue(ctx)
		}
	}
}

func (h *EmailHandler) renewDue(ctx context.Context) {
	due, err := h.triggers.ListEmailDue(ctx, time.Now().UTC().Add(constants.WatchRenewalThreshold))
	if err != nil {
		h.log.Error("list email triggers due for renewal failed", zap.Error(err))
		return
	}
	for _, trig := range due {
		expiry, err := h.renew(ctx, trig)
		if err != nil {
			h.log.Error("watch renewal failed", zap.String("trigger_id", trig.ID), zap.Error(err))
			continue
		}
		if err := h.triggers.UpdateEmailCursor(ctx, trig.ID, trig.HistoryID, trig.LastMessageKey, &expiry); err != nil {
			h.log.Error("persist renewed watch expiry failed", zap.String("trigger_id", trig.ID), zap.Error(err))
		}
	}
}

// jwtVerifier validates the `Authorization: Bearer <token>` JWT Google
// attaches to push requests (spec §4.8).
type jwtVerifier struct {
	audience     string
	issuer       string
	keyFunc      jwt.Keyfunc
	validMethods []string
}

func (v *jwtVerifier) verify(r *http.Request) error {
	authz := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(authz) <= len(prefix) || authz[:len(prefix)] != prefix {
		return errors.New("missing bearer token")
	}
	tokenStr := authz[len(prefix):]

	claims := jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, &claims, v.keyFunc,
		jwt.WithAudience(v.audience), jwt.WithIssuer(v.issuer), jwt.WithValidMethods(v.validMethods))
	if err != nil || !token.Valid {
		return fmt.Errorf("invalid push token: %w", domain.ErrUnauthorized)
	}
	return nil
}
