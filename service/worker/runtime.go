package worker

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/pumpops/pumpops-server/cmd/models"
)

// Fetcher resolves an asset path to its bytes, normally over the network.
type Fetcher func(path string) ([]byte, error)

// Renderer surfaces one visible notification to the user.
type Renderer interface {
	Render(n *models.NotificationPayload) error
}

// Window is an open application window the runtime can route a click to.
type Window interface {
	Origin() string
	Navigate(url string) error
	Focus() error
}

// WindowRegistry tracks open windows and can open new ones.
type WindowRegistry interface {
	Windows() []Window
	Open(url string) (Window, error)
}

// Fallbacks used when a push payload is not structured JSON.
const (
	fallbackTitle = "PumpOps"
	fallbackIcon  = "/icons/icon-192x192.png"
	fallbackBadge = "/icons/badge-72x72.png"
	fallbackURL   = "/"
)

var ErrNotInstalled = errors.New("worker version not installed")

// ClickEvent is a user interaction with a rendered notification.
type ClickEvent struct {
	Action string                 `json:"action,omitempty"`
	Data   map[string]interface{} `json:"data,omitempty"`
	URL    string                 `json:"url,omitempty"`
}

// ClickResult reports how a click was routed.
type ClickResult struct {
	URL     string `json:"url"`
	Focused bool   `json:"focused"`
	Opened  bool   `json:"opened"`
}

// Runtime is the background worker expressed as one handler per platform
// event: install, activate, fetch, push, notificationclick, message. Each
// handler maps (cache state, event) to side effects, which keeps the
// single-active-generation invariant testable.
type Runtime struct {
	mu        sync.Mutex
	cacheName string
	origin    string
	caches    *CacheSet
	fetch     Fetcher
	renderer  Renderer
	windows   WindowRegistry
	installed bool
	active    bool
}

func NewRuntime(cacheName, origin string, fetch Fetcher, renderer Renderer, windows WindowRegistry) *Runtime {
	return &Runtime{
		cacheName: cacheName,
		origin:    origin,
		caches:    NewCacheSet(),
		fetch:     fetch,
		renderer:  renderer,
		windows:   windows,
	}
}

// HandleInstall pre-populates this version's cache. Any asset failing to
// fetch aborts the whole install, leaving the version not activatable.
func (r *Runtime) HandleInstall(assets []string) error {
	cache, err := BuildCache(r.cacheName, assets, r.fetch)
	if err != nil {
		return fmt.Errorf("install aborted: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.caches.Put(cache)
	r.installed = true
	return nil
}

// HandleActivate removes every cache generation other than the current one.
func (r *Runtime) HandleActivate() ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.installed {
		return nil, ErrNotInstalled
	}

	deleted := r.caches.DeleteOthers(r.cacheName)
	for _, name := range deleted {
		log.Printf("[worker] deleted old cache %s", name)
	}
	r.active = true
	return deleted, nil
}

// HandleFetch answers cache-first with network fallback. A miss is served
// from the network without being written back to the cache.
func (r *Runtime) HandleFetch(path string) ([]byte, error) {
	if cache, ok := r.caches.Get(r.cacheName); ok {
		if body, hit := cache.Get(path); hit {
			return body, nil
		}
	}
	return r.fetch(path)
}

// HandlePush parses the incoming payload and renders exactly one visible
// notification. A payload that is not valid JSON becomes the notification
// body verbatim, under fixed defaults. There is no branch that skips
// rendering: a push with nothing visible would let the platform revoke
// permission.
func (r *Runtime) HandlePush(payload []byte) (*models.NotificationPayload, error) {
	n := models.NotificationPayload{
		Title: fallbackTitle,
		Icon:  fallbackIcon,
		Badge: fallbackBadge,
		URL:   fallbackURL,
	}

	var parsed models.NotificationPayload
	if err := json.Unmarshal(payload, &parsed); err == nil {
		if parsed.Title != "" {
			n.Title = parsed.Title
		}
		n.Body = parsed.Body
		if parsed.Icon != "" {
			n.Icon = parsed.Icon
		}
		if parsed.Badge != "" {
			n.Badge = parsed.Badge
		}
		if parsed.URL != "" {
			n.URL = parsed.URL
		}
		n.Data = parsed.Data
	} else {
		n.Body = string(payload)
	}

	if err := r.renderer.Render(&n); err != nil {
		return &n, fmt.Errorf("rendering notification: %w", err)
	}
	return &n, nil
}

// HandleNotificationClick closes the notification and routes the click:
// focus and navigate an existing same-origin window, else open exactly one
// new window at the target URL. Only the default and "open" actions
// navigate; anything else dismisses.
func (r *Runtime) HandleNotificationClick(click ClickEvent) (*ClickResult, error) {
	if click.Action != "" && click.Action != "open" {
		return &ClickResult{}, nil
	}

	target := fallbackURL
	if click.URL != "" {
		target = click.URL
	} else if u, ok := click.Data["url"].(string); ok && u != "" {
		target = u
	}

	for _, w := range r.windows.Windows() {
		if w.Origin() != r.origin {
			continue
		}
		if err := w.Navigate(target); err != nil {
			log.Printf("[worker] error navigating window: %v", err)
			continue
		}
		if err := w.Focus(); err != nil {
			log.Printf("[worker] error focusing window: %v", err)
		}
		return &ClickResult{URL: target, Focused: true}, nil
	}

	if _, err := r.windows.Open(target); err != nil {
		return nil, fmt.Errorf("opening window: %w", err)
	}
	return &ClickResult{URL: target, Opened: true}, nil
}

// ControlMessage is a page-to-worker instruction.
type ControlMessage struct {
	Type string `json:"type"`
}

// HandleMessage applies skip-waiting only when explicitly requested; an
// installed version never activates itself over running sessions.
func (r *Runtime) HandleMessage(msg ControlMessage) error {
	if msg.Type != "SKIP_WAITING" {
		return nil
	}
	r.mu.Lock()
	installed, active := r.installed, r.active
	r.mu.Unlock()
	if !installed || active {
		return nil
	}
	_, err := r.HandleActivate()
	return err
}

// Active reports whether this version is the live one.
func (r *Runtime) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}
