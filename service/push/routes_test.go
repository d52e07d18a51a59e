package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pumpops/pumpops-server/cmd/models"
	"github.com/pumpops/pumpops-server/cmd/utils"
)

// memStore is an in-memory SubscriptionStore keyed the same way the
// database is, by (user, endpoint).
type memStore struct {
	mu     sync.Mutex
	subs   []models.PushSubscription
	logs   []models.NotificationLog
	nextID uint
}

func newMemStore() *memStore {
	return &memStore{nextID: 1}
}

func (s *memStore) Upsert(sub *models.PushSubscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.subs {
		if s.subs[i].UserID == sub.UserID && s.subs[i].Endpoint == sub.Endpoint {
			s.subs[i].P256dh = sub.P256dh
			s.subs[i].Auth = sub.Auth
			*sub = s.subs[i]
			return nil
		}
	}
	sub.ID = s.nextID
	s.nextID++
	s.subs = append(s.subs, *sub)
	return nil
}

func (s *memStore) DeleteByEndpoint(userID uint, endpoint string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remove(func(sub models.PushSubscription) bool {
		return sub.UserID == userID && sub.Endpoint == endpoint
	}), nil
}

func (s *memStore) DeleteForUser(userID uint) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remove(func(sub models.PushSubscription) bool {
		return sub.UserID == userID
	}), nil
}

func (s *memStore) PruneEndpoint(endpoint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remove(func(sub models.PushSubscription) bool {
		return sub.Endpoint == endpoint
	})
	return nil
}

func (s *memStore) remove(match func(models.PushSubscription) bool) int64 {
	var kept []models.PushSubscription
	var removed int64
	for _, sub := range s.subs {
		if match(sub) {
			removed++
			continue
		}
		kept = append(kept, sub)
	}
	s.subs = kept
	return removed
}

func (s *memStore) ForUser(userID uint) ([]models.PushSubscription, error) {
	return s.ForUsers([]uint{userID})
}

func (s *memStore) ForUsers(userIDs []uint) ([]models.PushSubscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.PushSubscription
	for _, sub := range s.subs {
		for _, id := range userIDs {
			if sub.UserID == id {
				out = append(out, sub)
				break
			}
		}
	}
	return out, nil
}

func (s *memStore) All() ([]models.PushSubscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.PushSubscription(nil), s.subs...), nil
}

func (s *memStore) HasActive(userID uint) (bool, error) {
	subs, _ := s.ForUser(userID)
	return len(subs) > 0, nil
}

func (s *memStore) AppendLog(entry *models.NotificationLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, *entry)
	return nil
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// mockSender fails deliveries to endpoints listed in failWith and counts
// every attempt.
type mockSender struct {
	mu       sync.Mutex
	calls    int
	failWith map[string]int
}

func (m *mockSender) Send(ctx context.Context, sub *models.PushSubscription, payload []byte) (int, error) {
	m.mu.Lock()
	m.calls++
	status, fail := m.failWith[sub.Endpoint]
	m.mu.Unlock()
	if fail {
		return status, fmt.Errorf("push endpoint returned %d", status)
	}
	return http.StatusCreated, nil
}

func (m *mockSender) sendCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func testHandler(store SubscriptionStore, sender Sender) *PushHandler {
	return &PushHandler{
		store:     store,
		sender:    sender,
		publicKey: "BNUt6lHeVDOHq8xbfnpGE-d4bC7lG93F9pCh1dGmnsTBh7BNUlVzrpdJxr2H5665ZTHHPvEWPVlIJbcfCwdTVVM",
	}
}

func authedRequest(method, target string, body []byte, userID uint) *http.Request {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	return req.WithContext(context.WithValue(req.Context(), utils.UserIDKey, userID))
}

func seedSubscription(t *testing.T, store *memStore, userID uint, endpoint string) {
	t.Helper()
	err := store.Upsert(&models.PushSubscription{
		UserID:   userID,
		Endpoint: endpoint,
		P256dh:   "p256dh-key",
		Auth:     "auth-secret",
	})
	require.NoError(t, err)
}

func TestSubscribe_Registers(t *testing.T) {
	store := newMemStore()
	h := testHandler(store, &mockSender{})

	var sub models.SubscribeRequest
	sub.Endpoint = "https://push.example.com/ep-1"
	sub.Keys.P256dh = "client-p256dh"
	sub.Keys.Auth = "client-auth"
	body, _ := json.Marshal(sub)

	rr := httptest.NewRecorder()
	h.Subscribe(rr, authedRequest("POST", "/push/subscriptions", body, 7))

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, 1, store.count())
}

func TestSubscribe_SameDeviceNeverDuplicates(t *testing.T) {
	store := newMemStore()
	h := testHandler(store, &mockSender{})

	body, _ := json.Marshal(map[string]interface{}{
		"endpoint": "https://push.example.com/ep-1",
		"keys":     map[string]string{"p256dh": "first", "auth": "first-auth"},
	})
	rotated, _ := json.Marshal(map[string]interface{}{
		"endpoint": "https://push.example.com/ep-1",
		"keys":     map[string]string{"p256dh": "rotated", "auth": "rotated-auth"},
	})

	rr := httptest.NewRecorder()
	h.Subscribe(rr, authedRequest("POST", "/push/subscriptions", body, 7))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	h.Subscribe(rr, authedRequest("POST", "/push/subscriptions", rotated, 7))
	require.Equal(t, http.StatusOK, rr.Code)

	require.Equal(t, 1, store.count(), "re-subscribing the same endpoint must update in place")
	assert.Equal(t, "rotated", store.subs[0].P256dh)
	assert.Equal(t, "rotated-auth", store.subs[0].Auth)
}

func TestSubscribe_SecondDeviceAddsRow(t *testing.T) {
	store := newMemStore()
	h := testHandler(store, &mockSender{})

	for _, endpoint := range []string{"https://push.example.com/phone", "https://push.example.com/laptop"} {
		body, _ := json.Marshal(map[string]interface{}{
			"endpoint": endpoint,
			"keys":     map[string]string{"p256dh": "k", "auth": "a"},
		})
		rr := httptest.NewRecorder()
		h.Subscribe(rr, authedRequest("POST", "/push/subscriptions", body, 7))
		require.Equal(t, http.StatusOK, rr.Code)
	}

	assert.Equal(t, 2, store.count())
}

func TestSubscribe_RejectsMissingKeys(t *testing.T) {
	store := newMemStore()
	h := testHandler(store, &mockSender{})

	body, _ := json.Marshal(map[string]interface{}{
		"endpoint": "https://push.example.com/ep-1",
		"keys":     map[string]string{"p256dh": "", "auth": "a"},
	})

	rr := httptest.NewRecorder()
	h.Subscribe(rr, authedRequest("POST", "/push/subscriptions", body, 7))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, 0, store.count())
}

func TestSubscribe_DeniedPermissionIsForbidden(t *testing.T) {
	store := newMemStore()
	h := testHandler(store, &mockSender{})
	h.permissions = stubReporter{platform: &fakePlatform{supported: true, permission: PermissionDenied}}

	body, _ := json.Marshal(map[string]interface{}{
		"endpoint": "https://push.example.com/ep-1",
		"keys":     map[string]string{"p256dh": "k", "auth": "a"},
	})

	rr := httptest.NewRecorder()
	h.Subscribe(rr, authedRequest("POST", "/push/subscriptions", body, 7))

	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, 0, store.count())
}

func TestSubscribe_UnsupportedPlatformIsForbidden(t *testing.T) {
	store := newMemStore()
	h := testHandler(store, &mockSender{})
	h.permissions = stubReporter{platform: &fakePlatform{supported: false}}

	body, _ := json.Marshal(map[string]interface{}{
		"endpoint": "https://push.example.com/ep-1",
		"keys":     map[string]string{"p256dh": "k", "auth": "a"},
	})

	rr := httptest.NewRecorder()
	h.Subscribe(rr, authedRequest("POST", "/push/subscriptions", body, 7))

	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, 0, store.count())
}

type stubReporter struct {
	platform Platform
}

func (r stubReporter) PlatformFor(userID uint) (Platform, bool) {
	return r.platform, r.platform != nil
}

func TestUnsubscribe_RemovesByEndpoint(t *testing.T) {
	store := newMemStore()
	seedSubscription(t, store, 7, "https://push.example.com/phone")
	seedSubscription(t, store, 7, "https://push.example.com/laptop")
	h := testHandler(store, &mockSender{})

	body, _ := json.Marshal(map[string]string{"endpoint": "https://push.example.com/phone"})
	rr := httptest.NewRecorder()
	h.Unsubscribe(rr, authedRequest("DELETE", "/push/subscriptions", body, 7))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, store.count())
}

func TestUnsubscribe_EmptyBodyRemovesAllForUser(t *testing.T) {
	store := newMemStore()
	seedSubscription(t, store, 7, "https://push.example.com/phone")
	seedSubscription(t, store, 7, "https://push.example.com/laptop")
	seedSubscription(t, store, 8, "https://push.example.com/other-user")
	h := testHandler(store, &mockSender{})

	rr := httptest.NewRecorder()
	h.Unsubscribe(rr, authedRequest("DELETE", "/push/subscriptions", nil, 7))

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, 1, store.count())
	assert.Equal(t, uint(8), store.subs[0].UserID)
}

func TestGetStatus(t *testing.T) {
	store := newMemStore()
	seedSubscription(t, store, 7, "https://push.example.com/phone")
	h := testHandler(store, &mockSender{})
	h.permissions = stubReporter{platform: &fakePlatform{supported: true, permission: PermissionGranted}}

	rr := httptest.NewRecorder()
	h.GetStatus(rr, authedRequest("GET", "/push/status", nil, 7))

	require.Equal(t, http.StatusOK, rr.Code)

	var status struct {
		Supported             bool   `json:"supported"`
		Permission            string `json:"permission"`
		HasActiveSubscription bool   `json:"hasActiveSubscription"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &status))
	assert.True(t, status.Supported)
	assert.Equal(t, "granted", status.Permission)
	assert.True(t, status.HasActiveSubscription)
}

func TestDispatch_RequiresTitleAndBody(t *testing.T) {
	store := newMemStore()
	seedSubscription(t, store, 7, "https://push.example.com/phone")
	sender := &mockSender{}
	h := testHandler(store, sender)

	body, _ := json.Marshal(map[string]string{"title": "", "body": "no title"})
	rr := httptest.NewRecorder()
	h.Dispatch(rr, httptest.NewRequest("POST", "/push/dispatch", bytes.NewReader(body)))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, 0, sender.sendCount(), "a rejected request must not attempt delivery")
}

func TestDispatch_NoSubscriptions(t *testing.T) {
	sender := &mockSender{}
	h := testHandler(newMemStore(), sender)

	body, _ := json.Marshal(map[string]string{"title": "Hello", "body": "World"})
	rr := httptest.NewRecorder()
	h.Dispatch(rr, httptest.NewRequest("POST", "/push/dispatch", bytes.NewReader(body)))

	require.Equal(t, http.StatusOK, rr.Code)

	var result models.DispatchResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
	assert.Equal(t, 0, result.Successful)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, 0, result.Total)
	assert.Equal(t, 0, sender.sendCount())
}

func TestDispatch_PartialFailureStillSucceeds(t *testing.T) {
	store := newMemStore()
	for i := 1; i <= 5; i++ {
		seedSubscription(t, store, uint(i), fmt.Sprintf("https://push.example.com/ep-%d", i))
	}
	sender := &mockSender{failWith: map[string]int{
		"https://push.example.com/ep-2": http.StatusInternalServerError,
		"https://push.example.com/ep-4": http.StatusBadGateway,
	}}
	h := testHandler(store, sender)

	body, _ := json.Marshal(map[string]string{"title": "Fleet update", "body": "Pump 3 back in service"})
	rr := httptest.NewRecorder()
	h.Dispatch(rr, httptest.NewRequest("POST", "/push/dispatch", bytes.NewReader(body)))

	require.Equal(t, http.StatusOK, rr.Code, "partial delivery failure must still report overall counts")

	var result models.DispatchResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
	assert.Equal(t, 3, result.Successful)
	assert.Equal(t, 2, result.Failed)
	assert.Equal(t, 5, result.Total)
	assert.Equal(t, 5, sender.sendCount())
}

func TestDispatch_TargetsSingleUser(t *testing.T) {
	store := newMemStore()
	seedSubscription(t, store, 1, "https://push.example.com/u1-phone")
	seedSubscription(t, store, 1, "https://push.example.com/u1-laptop")
	seedSubscription(t, store, 2, "https://push.example.com/u2")
	sender := &mockSender{}
	h := testHandler(store, sender)

	userID := uint(1)
	result, err := h.dispatch(context.Background(), &models.DispatchRequest{
		Title:  "Job assigned",
		Body:   "You have a new booking",
		UserID: &userID,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 2, sender.sendCount())
}

func TestDispatch_TargetsUserGroup(t *testing.T) {
	store := newMemStore()
	seedSubscription(t, store, 1, "https://push.example.com/u1")
	seedSubscription(t, store, 2, "https://push.example.com/u2")
	seedSubscription(t, store, 3, "https://push.example.com/u3")
	sender := &mockSender{}
	h := testHandler(store, sender)

	result, err := h.dispatch(context.Background(), &models.DispatchRequest{
		Title:     "Report ready",
		Body:      "Review the site report",
		UserGroup: []uint{1, 3},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 2, result.Successful)
}

func TestDispatch_PrunesGoneSubscriptions(t *testing.T) {
	store := newMemStore()
	seedSubscription(t, store, 1, "https://push.example.com/alive")
	seedSubscription(t, store, 2, "https://push.example.com/gone")
	sender := &mockSender{failWith: map[string]int{
		"https://push.example.com/gone": http.StatusGone,
	}}
	h := testHandler(store, sender)

	result, err := h.dispatch(context.Background(), &models.DispatchRequest{
		Title: "Cleanup probe",
		Body:  "checking endpoints",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Successful)
	assert.Equal(t, 1, result.Failed)

	require.Equal(t, 1, store.count(), "a 410 endpoint must be pruned during the same dispatch")
	assert.Equal(t, "https://push.example.com/alive", store.subs[0].Endpoint)
}

func TestDispatch_WritesAuditLogPerSubscription(t *testing.T) {
	store := newMemStore()
	seedSubscription(t, store, 1, "https://push.example.com/ok")
	seedSubscription(t, store, 2, "https://push.example.com/bad")
	sender := &mockSender{failWith: map[string]int{
		"https://push.example.com/bad": http.StatusInternalServerError,
	}}
	h := testHandler(store, sender)

	_, err := h.dispatch(context.Background(), &models.DispatchRequest{
		Title: "Audit check",
		Body:  "ledger",
		Type:  TypeFinancialUpdate,
	})
	require.NoError(t, err)

	require.Len(t, store.logs, 2)
	byEndpoint := map[string]models.NotificationLog{}
	for _, entry := range store.logs {
		byEndpoint[entry.Endpoint] = entry
		assert.NotEmpty(t, entry.TraceID)
	}
	assert.Equal(t, store.logs[0].TraceID, store.logs[1].TraceID, "one dispatch shares one trace id")
	assert.Equal(t, models.LogStatusSent, byEndpoint["https://push.example.com/ok"].Status)
	assert.Equal(t, models.LogStatusFailed, byEndpoint["https://push.example.com/bad"].Status)
	assert.NotEmpty(t, byEndpoint["https://push.example.com/bad"].ErrorMessage)
}

func TestNotifier_ScheduleCreatedTargetsOperator(t *testing.T) {
	store := newMemStore()
	seedSubscription(t, store, 5, "https://push.example.com/operator")
	seedSubscription(t, store, 9, "https://push.example.com/bystander")
	sender := &mockSender{}
	notifier := NewNotifier(testHandler(store, sender))

	result := notifier.FinancialUpdate(context.Background(), "Invoice INV-1234 paid")
	require.True(t, result.Success)
	assert.Equal(t, 2, result.Total)

	sender2 := &mockSender{}
	notifier = NewNotifier(testHandler(store, sender2))
	result = notifier.PumpStatusChanged(context.Background(), []uint{5}, "Pump 42", models.PumpMaintenance)
	require.True(t, result.Success)
	assert.Equal(t, 1, result.Total)
	assert.Equal(t, 1, sender2.sendCount())
}
