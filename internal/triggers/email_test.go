package triggers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orchcore/orchcore/internal/common/logger"
	"github.com/orchcore/orchcore/internal/domain"
	"github.com/orchcore/orchcore/internal/events"
	"github.com/orchcore/orchcore/internal/events/bus"
)

type fakeEmailTriggerStore struct {
	mu      sync.Mutex
	trig    *domain.Trigger
	updates int
}

func (f *fakeEmailTriggerStore) GetByEmailAddress(ctx context.Context, emailAddress string) (*domain.Trigger, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.trig == nil || f.trig.Config == nil {
		return nil, domain.ErrNotFound
	}
	var cfg struct {
		EmailAddress string `json:"email_address"`
	}
	if err := json.Unmarshal(f.trig.Config, &cfg); err != nil || cfg.EmailAddress != emailAddress {
		return nil, domain.ErrNotFound
	}
	cp := *f.trig
	return &cp, nil
}

func (f *fakeEmailTriggerStore) ListEmailDue(ctx context.Context, before time.Time) ([]*domain.Trigger, error) {
	return nil, nil
}

func (f *fakeEmailTriggerStore) UpdateEmailCursor(ctx context.Context, id, historyID, lastMessageKey string, watchExpiry *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates++
	f.trig.HistoryID = historyID
	f.trig.LastMessageKey = lastMessageKey
	if watchExpiry != nil {
		f.trig.WatchExpiry = watchExpiry
	}
	return nil
}

const testHMACSecret = "test-signing-key"

func testKeyFunc(token *jwt.Token) (any, error) { return []byte(testHMACSecret), nil }

func signedPushToken(t *testing.T, aud, iss string) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Audience:  jwt.ClaimStrings{aud},
		Issuer:    iss,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := tok.SignedString([]byte(testHMACSecret))
	require.NoError(t, err)
	return s
}

func pushBody(t *testing.T, messageID string, historyID uint64) []byte {
	t.Helper()
	inner, err := json.Marshal(gmailHistoryEvent{EmailAddress: "a@b.com", HistoryID: historyID})
	require.NoError(t, err)
	env := pushNotification{}
	env.Message.Data = base64.StdEncoding.EncodeToString(inner)
	env.Message.MessageID = messageID
	out, err := json.Marshal(env)
	require.NoError(t, err)
	return out
}

func newTestEmailHandler(store *fakeEmailTriggerStore, b bus.EventBus) *EmailHandler {
	renew := func(ctx context.Context, trig *domain.Trigger) (time.Time, error) {
		return time.Now().Add(7 * 24 * time.Hour), nil
	}
	return NewEmailHandler(store, b, "aud1", "iss1", testKeyFunc, []string{"HS256"}, renew, logger.Default())
}

func TestEmailHandler_ValidPushFiresOnce(t *testing.T) {
	store := &fakeEmailTriggerStore{trig: &domain.Trigger{ID: "t1", AgentID: "a1", Type: domain.TriggerTypeEmail, Config: json.RawMessage(`{"email_address":"a@b.com"}`)}}
	memBus := bus.NewMemoryBus(logger.Default())
	var fireCount int
	_, err := memBus.Subscribe(events.TriggerFired, func(ctx context.Context, evt *events.Event) error {
		fireCount++
		return nil
	})
	require.NoError(t, err)

	h := newTestEmailHandler(store, memBus)

	body := pushBody(t, "msg-1", 100)
	req := httptest.NewRequest(http.MethodPost, "/api/email/webhook/google", strings.NewReader(string(body)))
	req.Header.Set("Authorization", "Bearer "+signedPushToken(t, "aud1", "iss1"))
	w := httptest.NewRecorder()

	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, 1, fireCount)
	assert.Equal(t, 1, store.updates)
}

func TestEmailHandler_DuplicateMessageIsDeduped(t *testing.T) {
	store := &fakeEmailTriggerStore{trig: &domain.Trigger{ID: "t1", AgentID: "a1", Type: domain.TriggerTypeEmail, LastMessageKey: "msg-1", Config: json.RawMessage(`{"email_address":"a@b.com"}`)}}
	memBus := bus.NewMemoryBus(logger.Default())
	var fireCount int
	_, err := memBus.Subscribe(events.TriggerFired, func(ctx context.Context, evt *events.Event) error {
		fireCount++
		return nil
	})
	require.NoError(t, err)

	h := newTestEmailHandler(store, memBus)

	body := pushBody(t, "msg-1", 100)
	req := httptest.NewRequest(http.MethodPost, "/api/email/webhook/google", strings.NewReader(string(body)))
	req.Header.Set("Authorization", "Bearer "+signedPushToken(t, "aud1", "iss1"))
	w := httptest.NewRecorder()

	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, 0, fireCount)
	assert.Equal(t, 0, store.updates)
}

func TestEmailHandler_InvalidTokenRejected(t *testing.T) {
	store := &fakeEmailTriggerStore{trig: &domain.Trigger{ID: "t1", AgentID: "a1", Type: domain.TriggerTypeEmail, Config: json.RawMessage(`{"email_address":"a@b.com"}`)}}
	memBus := bus.NewMemoryBus(logger.Default())
	h := newTestEmailHandler(store, memBus)

	body := pushBody(t, "msg-1", 100)
	req := httptest.NewRequest(http.MethodPost, "/api/email/webhook/google", strings.NewReader(string(body)))
	req.Header.Set("Authorization", "Bearer "+signedPushToken(t, "wrong-audience", "iss1"))
	w := httptest.NewRecorder()

	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
