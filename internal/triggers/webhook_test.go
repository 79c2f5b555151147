package triggers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orchcore/orchcore/internal/common/logger"
	"github.com/orchcore/orchcore/internal/domain"
	"github.com/orchcore/orchcore/internal/events"
	"github.com/orchcore/orchcore/internal/events/bus"
)

type fakeTriggerGetter struct {
	trig *domain.Trigger
}

func (f *fakeTriggerGetter) Get(ctx context.Context, id string) (*domain.Trigger, error) {
	if f.trig == nil || f.trig.ID != id {
		return nil, domain.ErrNotFound
	}
	return f.trig, nil
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestWebhookHandler_ValidSignatureAccepted(t *testing.T) {
	trig := &domain.Trigger{ID: "t1", AgentID: "a1", Type: domain.TriggerTypeWebhook, Secret: "shh"}
	memBus := bus.NewMemoryBus(logger.Default())
	var fired *events.Event
	_, err := memBus.Subscribe(events.TriggerFired, func(ctx context.Context, evt *events.Event) error {
		fired = evt
		return nil
	})
	require.NoError(t, err)

	h := NewWebhookHandler(&fakeTriggerGetter{trig: trig}, memBus, logger.Default())

	body := []byte(`{"hello":"world"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/triggers/t1/events", strings.NewReader(string(body)))
	req.Header.Set("X-Signature", sign("shh", body))
	w := httptest.NewRecorder()

	h.ServeHTTP(w, req, "t1")

	assert.Equal(t, http.StatusAccepted, w.Code)
	require.NotNil(t, fired)
	payload := fired.Data.(events.PayloadTrigger)
	assert.Equal(t, "t1", payload.TriggerID)
	assert.Equal(t, "world", payload.Payload["hello"])
}

func TestWebhookHandler_BadSignatureRejected(t *testing.T) {
	trig := &domain.Trigger{ID: "t1", AgentID: "a1", Type: domain.TriggerTypeWebhook, Secret: "shh"}
	memBus := bus.NewMemoryBus(logger.Default())
	h := NewWebhookHandler(&fakeTriggerGetter{trig: trig}, memBus, logger.Default())

	req := httptest.NewRequest(http.MethodPost, "/api/triggers/t1/events", strings.NewReader(`{}`))
	req.Header.Set("X-Signature", "not-the-right-signature")
	w := httptest.NewRecorder()

	h.ServeHTTP(w, req, "t1")

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWebhookHandler_UnknownTriggerIs404(t *testing.T) {
	memBus := bus.NewMemoryBus(logger.Default())
	h := NewWebhookHandler(&fakeTriggerGetter{}, memBus, logger.Default())

	req := httptest.NewRequest(http.MethodPost, "/api/triggers/missing/events", strings.NewReader(`{}`))
	w := httptest.NewRecorder()

	h.ServeHTTP(w, req, "missing")

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestWebhookHandler_MalformedJSONIs400(t *testing.T) {
	trig := &domain.Trigger{ID: "t1", AgentID: "a1", Type: domain.TriggerTypeWebhook, Secret: "shh"}
	memBus := bus.NewMemoryBus(logger.Default())
	h := NewWebhookHandler(&fakeTriggerGetter{trig: trig}, memBus, logger.Default())

	body := []byte(`not json`)
	req := httptest.NewRequest(http.MethodPost, "/api/triggers/t1/events", strings.NewReader(string(body)))
	req.Header.Set("X-Signature", sign("shh", body))
	w := httptest.NewRecorder()

	h.ServeHTTP(w, req, "t1")

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
