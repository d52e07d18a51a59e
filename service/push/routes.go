package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/pumpops/pumpops-server/cmd/models"
	"github.com/pumpops/pumpops-server/cmd/utils"
	"gorm.io/gorm"
)

// PushHandler owns subscription registration and notification dispatch.
type PushHandler struct {
	store       SubscriptionStore
	sender      Sender
	permissions PermissionReporter
	publicKey   string
}

// NewPushHandler builds the handler from the environment. A malformed VAPID
// public key is a configuration defect: it is logged and push registration
// is reported unsupported rather than proceeding with a broken key.
func NewPushHandler(db *gorm.DB, permissions PermissionReporter) *PushHandler {
	publicKey := os.Getenv("VAPID_PUBLIC_KEY")
	privateKey := os.Getenv("VAPID_PRIVATE_KEY")
	subscriber := os.Getenv("VAPID_SUBSCRIBER")

	if publicKey != "" {
		if _, err := ValidateApplicationServerKey(publicKey); err != nil {
			log.Printf("[push] configuration error: %v", err)
			publicKey = ""
		}
	}

	return &PushHandler{
		store:       NewGormStore(db),
		sender:      NewWebPushSender(publicKey, privateKey, subscriber),
		permissions: permissions,
		publicKey:   publicKey,
	}
}

func (h *PushHandler) RegisterRoutes(router *mux.Router) {
	pushRouter := router.PathPrefix("/push").Subrouter()
	pushRouter.HandleFunc("/subscriptions", utils.AuthMiddleware(h.Subscribe)).Methods("POST")
	pushRouter.HandleFunc("/subscriptions", utils.AuthMiddleware(h.Unsubscribe)).Methods("DELETE")
	pushRouter.HandleFunc("/status", utils.AuthMiddleware(h.GetStatus)).Methods("GET")
	pushRouter.HandleFunc("/vapid-key", h.GetVAPIDKey).Methods("GET")
	pushRouter.HandleFunc("/dispatch", h.Dispatch).Methods("POST")
}

func (h *PushHandler) platformFor(userID uint) (Platform, bool) {
	if h.permissions == nil {
		return nil, false
	}
	return h.permissions.PlatformFor(userID)
}

// GetVAPIDKey serves the public application server key clients subscribe with.
func (h *PushHandler) GetVAPIDKey(w http.ResponseWriter, r *http.Request) {
	if h.publicKey == "" {
		http.Error(w, "Push notifications are not configured", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"key": h.publicKey})
}

// Subscribe registers a device subscription for the authenticated user.
// Re-subscribing an existing device updates it in place.
func (h *PushHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if h.publicKey == "" {
		http.Error(w, "Push notifications are not configured", http.StatusServiceUnavailable)
		return
	}

	// Honor the client's reported platform state when we have a session
	// for it: unsupported and denied are hard stops, not retries.
	if platform, ok := h.platformFor(userID); ok {
		gate := NewPermissionGate(platform)
		perm, err := gate.Query()
		if errors.Is(err, ErrUnsupported) {
			http.Error(w, "Push notifications not supported on this device", http.StatusForbidden)
			return
		}
		if err == nil && perm == PermissionDenied {
			http.Error(w, "Notification permission denied", http.StatusForbidden)
			return
		}
	}

	var req models.SubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.Endpoint == "" || req.Keys.P256dh == "" || req.Keys.Auth == "" {
		http.Error(w, "Endpoint and subscription keys are required", http.StatusBadRequest)
		return
	}

	sub := models.PushSubscription{
		UserID:   userID,
		Endpoint: req.Endpoint,
		P256dh:   req.Keys.P256dh,
		Auth:     req.Keys.Auth,
	}

	if err := h.store.Upsert(&sub); err != nil {
		log.Printf("[push] error saving subscription for user %d: %v", userID, err)
		http.Error(w, "Error saving subscription", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message":      "Subscription registered successfully",
		"subscription": sub,
	})
}

// Unsubscribe removes the caller's subscription rows. Teardown is
// best-effort: the platform-level unsubscribe happens client-side, and the
// row delete is attempted regardless of how that went.
func (h *PushHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		Endpoint string `json:"endpoint,omitempty"`
	}
	// An empty or absent body means "remove everything for this user".
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}

	var removed int64
	if req.Endpoint != "" {
		removed, err = h.store.DeleteByEndpoint(userID, req.Endpoint)
	} else {
		removed, err = h.store.DeleteForUser(userID)
	}
	if err != nil {
		log.Printf("[push] error removing subscription for user %d: %v", userID, err)
		http.Error(w, "Error removing subscription", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message": fmt.Sprintf("Removed %d subscription(s)", removed),
		"removed": removed,
	})
}

// GetStatus reports {supported, permission, hasActiveSubscription} for the
// authenticated user. Permission comes from the user's connected session
// when one exists; it is never cached server-side.
func (h *PushHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	supported := h.publicKey != ""
	permission := PermissionDefault
	if platform, ok := h.platformFor(userID); ok {
		if !platform.Supported() {
			supported = false
		} else {
			permission = platform.Permission()
		}
	}

	hasActive, err := h.store.HasActive(userID)
	if err != nil {
		http.Error(w, "Error reading subscriptions", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"supported":             supported,
		"permission":            permission,
		"hasActiveSubscription": hasActive,
	})
}

// Dispatch resolves the recipient set and fans the payload out to every
// stored subscription. Partial delivery failure is reported in the counts,
// never as a non-200 status.
func (h *PushHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
	var req models.DispatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.Title == "" || req.Body == "" {
		http.Error(w, "Title and body are required", http.StatusBadRequest)
		return
	}

	result, err := h.dispatch(r.Context(), &req)
	if err != nil {
		log.Printf("[push] dispatch error: %v", err)
		http.Error(w, "Error resolving subscriptions", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// dispatch is the programmatic core shared by the HTTP handler and the
// business-event helpers. It returns an error only for storage failures;
// delivery failures are contained in the result counts.
func (h *PushHandler) dispatch(ctx context.Context, req *models.DispatchRequest) (*models.DispatchResult, error) {
	var subs []models.PushSubscription
	var err error

	switch {
	case req.UserID != nil:
		subs, err = h.store.ForUser(*req.UserID)
	case len(req.UserGroup) > 0:
		subs, err = h.store.ForUsers(req.UserGroup)
	default:
		subs, err = h.store.All()
	}
	if err != nil {
		return nil, fmt.Errorf("resolving recipients: %w", err)
	}

	if len(subs) == 0 {
		return &models.DispatchResult{
			Message:    "No subscriptions to notify",
			Successful: 0,
			Failed:     0,
			Total:      0,
		}, nil
	}

	payload, err := json.Marshal(models.NotificationPayload{
		Title: req.Title,
		Body:  req.Body,
		Icon:  req.Icon,
		Badge: req.Badge,
		URL:   req.URL,
		Data:  req.Data,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding payload: %w", err)
	}

	traceID := uuid.New().String()

	var wg sync.WaitGroup
	var mu sync.Mutex
	successful, failed := 0, 0

	for i := range subs {
		wg.Add(1)
		go func(sub models.PushSubscription) {
			defer wg.Done()

			status, sendErr := h.sender.Send(ctx, &sub, payload)

			entry := models.NotificationLog{
				UserID:   sub.UserID,
				Title:    req.Title,
				Body:     req.Body,
				Type:     req.Type,
				Endpoint: sub.Endpoint,
				TraceID:  traceID,
			}

			if sendErr != nil {
				entry.Status = models.LogStatusFailed
				entry.ErrorMessage = sendErr.Error()
				log.Printf("[push] delivery to user %d failed: %v", sub.UserID, sendErr)

				if SubscriptionGone(status) {
					if pruneErr := h.store.PruneEndpoint(sub.Endpoint); pruneErr != nil {
						log.Printf("[push] error pruning stale endpoint: %v", pruneErr)
					} else {
						log.Printf("[push] pruned stale subscription (status %d)", status)
					}
				}
			} else {
				entry.Status = models.LogStatusSent
				entry.Delivered = true
			}

			if logErr := h.store.AppendLog(&entry); logErr != nil {
				// Audit logging is best-effort and never fails a dispatch.
				log.Printf("[push] error writing notification log: %v", logErr)
			}

			mu.Lock()
			if sendErr != nil {
				failed++
			} else {
				successful++
			}
			mu.Unlock()
		}(subs[i])
	}

	wg.Wait()

	return &models.DispatchResult{
		Message:    fmt.Sprintf("Dispatched to %d subscription(s)", len(subs)),
		Successful: successful,
		Failed:     failed,
		Total:      len(subs),
	}, nil
}

// LogClick records that a rendered notification was clicked. Best-effort.
func (h *PushHandler) LogClick(userID uint, title string, notifType string) {
	entry := models.NotificationLog{
		UserID:    userID,
		Title:     title,
		Type:      notifType,
		Delivered: true,
		Status:    models.LogStatusClicked,
	}
	if err := h.store.AppendLog(&entry); err != nil {
		log.Printf("[push] error logging notification click: %v", err)
	}
}
