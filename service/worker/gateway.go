package worker

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/pumpops/pumpops-server/cmd/models"
	"github.com/pumpops/pumpops-server/cmd/utils"
	"github.com/pumpops/pumpops-server/service/push"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ClickLogger records notification clicks in the audit log.
type ClickLogger interface {
	LogClick(userID uint, title string, notifType string)
}

// clientMessage is what a connected window sends the gateway.
type clientMessage struct {
	Type       string                 `json:"type"`
	Origin     string                 `json:"origin,omitempty"`
	Supported  *bool                  `json:"supported,omitempty"`
	Permission string                 `json:"permission,omitempty"`
	Title      string                 `json:"title,omitempty"`
	NotifType  string                 `json:"notification_type,omitempty"`
	Action     string                 `json:"action,omitempty"`
	URL        string                 `json:"url,omitempty"`
	Data       map[string]interface{} `json:"data,omitempty"`
}

// Session is one connected application window. It doubles as the platform
// capability surface its user reports and as a click-routing target.
type Session struct {
	UserID     uint
	Conn       *websocket.Conn
	gateway    *Gateway
	origin     string
	supported  bool
	permission push.Permission
	mu         sync.Mutex
}

func (s *Session) Origin() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.origin
}

func (s *Session) Supported() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.supported
}

func (s *Session) Permission() push.Permission {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.permission
}

// Prompt asks the window to raise the platform permission prompt. The
// answer arrives asynchronously as a permission message, so the state
// returned here is the one known right now.
func (s *Session) Prompt() (push.Permission, error) {
	if err := s.write(map[string]interface{}{"type": "request_permission"}); err != nil {
		return "", err
	}
	return s.Permission(), nil
}

func (s *Session) Navigate(url string) error {
	return s.write(map[string]interface{}{"type": "navigate", "url": url})
}

func (s *Session) Focus() error {
	return s.write(map[string]interface{}{"type": "focus"})
}

func (s *Session) write(v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Conn.WriteJSON(v)
}

// virtualWindow stands in for a window the runtime decided to open when no
// live session matched; the open directive reaches the client out-of-band.
type virtualWindow struct {
	origin string
	url    string
}

func (w *virtualWindow) Origin() string            { return w.origin }
func (w *virtualWindow) Navigate(url string) error { w.url = url; return nil }
func (w *virtualWindow) Focus() error              { return nil }

// Gateway tracks connected windows per user and bridges them to the worker
// runtime and the push pipeline.
type Gateway struct {
	mu       sync.RWMutex
	sessions map[uint][]*Session
	origin   string
	runtime  *Runtime
	clicks   ClickLogger
}

func NewGateway(origin string) *Gateway {
	return &Gateway{
		sessions: make(map[uint][]*Session),
		origin:   origin,
	}
}

// Attach wires the runtime and click logger once they exist; the gateway is
// constructed first because both sides need it.
func (g *Gateway) Attach(runtime *Runtime, clicks ClickLogger) {
	g.runtime = runtime
	g.clicks = clicks
}

func (g *Gateway) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/ws", utils.AuthMiddleware(g.HandleConnection))
}

func (g *Gateway) HandleConnection(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[gateway] error upgrading to WebSocket: %v", err)
		return
	}

	session := &Session{
		UserID:     userID,
		Conn:       conn,
		gateway:    g,
		origin:     g.origin,
		supported:  true,
		permission: push.PermissionDefault,
	}
	g.register(session)
	go session.readLoop()
}

func (g *Gateway) register(s *Session) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sessions[s.UserID] = append(g.sessions[s.UserID], s)
}

func (g *Gateway) unregister(s *Session) {
	g.mu.Lock()
	defer g.mu.Unlock()
	sessions := g.sessions[s.UserID]
	for i, existing := range sessions {
		if existing == s {
			g.sessions[s.UserID] = append(sessions[:i], sessions[i+1:]...)
			break
		}
	}
	if len(g.sessions[s.UserID]) == 0 {
		delete(g.sessions, s.UserID)
	}
}

// PlatformFor satisfies push.PermissionReporter with the user's most recent
// window; permission state is read fresh on every decision, never cached.
func (g *Gateway) PlatformFor(userID uint) (push.Platform, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	sessions := g.sessions[userID]
	if len(sessions) == 0 {
		return nil, false
	}
	return sessions[len(sessions)-1], true
}

// Windows satisfies WindowRegistry.
func (g *Gateway) Windows() []Window {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var windows []Window
	for _, sessions := range g.sessions {
		for _, s := range sessions {
			windows = append(windows, s)
		}
	}
	return windows
}

// Open satisfies WindowRegistry when no live window matched the click.
func (g *Gateway) Open(url string) (Window, error) {
	return &virtualWindow{origin: g.origin, url: url}, nil
}

// Render satisfies the runtime's Renderer by surfacing the notification on
// every connected window.
func (g *Gateway) Render(n *models.NotificationPayload) error {
	for _, w := range g.Windows() {
		s, ok := w.(*Session)
		if !ok {
			continue
		}
		if err := s.write(map[string]interface{}{"type": "notification", "notification": n}); err != nil {
			log.Printf("[gateway] error rendering to user %d: %v", s.UserID, err)
		}
	}
	return nil
}

func (s *Session) readLoop() {
	defer func() {
		s.gateway.unregister(s)
		s.Conn.Close()
	}()

	for {
		_, raw, err := s.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[gateway] websocket error: %v", err)
			}
			break
		}

		var msg clientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			log.Printf("[gateway] error unmarshaling message: %v", err)
			continue
		}

		switch msg.Type {
		case "hello", "permission":
			s.mu.Lock()
			if msg.Origin != "" {
				s.origin = msg.Origin
			}
			if msg.Supported != nil {
				s.supported = *msg.Supported
			}
			if msg.Permission != "" {
				s.permission = push.Permission(msg.Permission)
			}
			s.mu.Unlock()

		case "clicked":
			s.handleClick(msg)

		case "skip_waiting":
			if s.gateway.runtime != nil {
				if err := s.gateway.runtime.HandleMessage(ControlMessage{Type: "SKIP_WAITING"}); err != nil {
					log.Printf("[gateway] skip-waiting error: %v", err)
				}
			}
		}
	}
}

func (s *Session) handleClick(msg clientMessage) {
	if s.gateway.clicks != nil {
		s.gateway.clicks.LogClick(s.UserID, msg.Title, msg.NotifType)
	}
	if s.gateway.runtime == nil {
		return
	}
	result, err := s.gateway.runtime.HandleNotificationClick(ClickEvent{
		Action: msg.Action,
		URL:    msg.URL,
		Data:   msg.Data,
	})
	if err != nil {
		log.Printf("[gateway] click routing error: %v", err)
		return
	}
	if result.Opened {
		// No live window took the click; tell this one to open the target.
		if err := s.write(map[string]interface{}{"type": "open", "url": result.URL}); err != nil {
			log.Printf("[gateway] error sending open directive: %v", err)
		}
	}
}
