package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/larder/internal/backup"
	"github.com/dukerupert/larder/internal/config"
	"github.com/dukerupert/larder/internal/email"
	"github.com/dukerupert/larder/internal/handler"
	"github.com/dukerupert/larder/internal/membership"
	"github.com/dukerupert/larder/internal/metrics"
	"github.com/dukerupert/larder/internal/middleware"
	"github.com/dukerupert/larder/internal/push"
	"github.com/dukerupert/larder/internal/store"
	ws "github.com/dukerupert/larder/internal/websocket"
)

const (
	authRateLimit  = 10
	authRateWindow = time.Minute
)

type Server struct {
	db           *sql.DB
	hub          *ws.Hub
	metrics      *metrics.Metrics
	authH        *handler.AuthHandler
	householdH   *handler.HouseholdHandler
	groceryH     *handler.GroceryHandler
	auditH       *handler.AuditHandler
	pushH        *handler.PushHandler
	notifier     *push.Notifier
	backups      *backup.Manager
	sessionStore *store.SessionStore
	userStore    *store.UserStore
	rateLimiter  *middleware.RateLimiter
	proxies      middleware.TrustedProxies
	logger       *slog.Logger
}

func New(db *sql.DB, cfg *config.Config, logger *slog.Logger) *Server {
	m := metrics.New()

	hub := ws.NewHub(logger.With("component", "websocket"))
	hub.OnCountChange(m.SetWebsocketClients)

	userStore := store.NewUserStore(db)
	sessionStore := store.NewSessionStore(db, cfg.SessionTTL)
	householdStore := store.NewHouseholdStore(db)
	groceryStore := store.NewGroceryStore(db)
	auditStore := store.NewAuditStore(db)

	policy := membership.New(
		householdStore,
		auditStore,
		logger.With("component", "membership"),
		membership.WithDecisionObserver(m.ObserveDecision),
	)

	backups := backup.NewManager(cfg.Backup, db, logger.With("component", "backup"))
	backups.OnResult(m.ObserveBackup)

	s := &Server{
		db:      db,
		hub:     hub,
		metrics: m,
		authH: handler.NewAuthHandler(userStore, sessionStore, auditStore, cfg.SessionTTL, cfg.SecureCookies,
			logger.With("component", "auth")),
		householdH: handler.NewHouseholdHandler(policy, hub, logger.With("component", "household")),
		groceryH: handler.NewGroceryHandler(policy, groceryStore, auditStore, hub, cfg.RestockStatuses,
			logger.With("component", "grocery")),
		auditH:       handler.NewAuditHandler(policy, auditStore, logger.With("component", "audit")),
		sessionStore: sessionStore,
		userStore:    userStore,
		backups:      backups,
		rateLimiter:  middleware.NewRateLimiter(authRateLimit, authRateWindow),
		proxies:      cfg.TrustedProxies,
		logger:       logger,
	}

	if cfg.Push.Enabled() || cfg.Email.Enabled() {
		pushStore := store.NewPushStore(db)
		var sender push.Sender
		if cfg.Push.Enabled() {
			svc := push.NewService(cfg.Push.PublicKey, cfg.Push.PrivateKey, cfg.Push.Subject)
			sender = svc
			s.pushH = handler.NewPushHandler(pushStore, svc.VAPIDPublicKey(), logger.With("component", "push"))
		}
		s.notifier = push.NewNotifier(sender, pushStore, householdStore, userStore, groceryStore,
			logger.With("component", "notify"))
		s.notifier.OnDelivery(m.ObserveNotification)
		if cfg.Email.Enabled() {
			s.notifier.SetMailer(email.NewClient(cfg.Email.PostmarkToken, cfg.Email.From, cfg.Email.BaseURL))
		}
		s.householdH.SetNotifier(s.notifier)
	}
	return s
}

// SessionStore returns the session store for cleanup tasks.
func (s *Server) SessionStore() *store.SessionStore {
	return s.sessionStore
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

// Backups returns the snapshot manager. It is never nil; check its Status
// to see whether backups are configured.
func (s *Server) Backups() *backup.Manager {
	return s.backups
}

// Notifier returns the notifier, or nil when neither push nor email is
// configured.
func (s *Server) Notifier() *push.Notifier {
	return s.notifier
}

// Hub returns the websocket hub.
func (s *Server) Hub() *ws.Hub {
	return s.hub
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	// Public routes (no auth required)
	mux.HandleFunc("GET /health", s.healthHandler)
	mux.Handle("GET /metrics", s.metrics.Handler())
	mux.HandleFunc("POST /register", s.rateLimitedHandler(s.authH.Register))
	mux.HandleFunc("POST /login", s.rateLimitedHandler(s.authH.Login))

	s.registerProtectedRoutes(mux, middleware.RequireAuth(s.sessionStore, s.userStore, s.logger.With("component", "session")))

	// Metrics sits directly on the mux so it sees the matched pattern.
	h := middleware.RequestLogger(s.logger.With("component", "http"))(middleware.Metrics(s.metrics)(mux))
	return middleware.ClientIP(s.proxies)(h)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.db.PingContext(r.Context()); err != nil {
		s.logger.Error("health check failed", "error", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"unavailable"}` + "\n"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}` + "\n"))
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	rl := middleware.RateLimit(s.rateLimiter, middleware.RealIP)
	return rl(h).ServeHTTP
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux, requireAuth func(http.Handler) http.Handler) {
	handle := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, requireAuth(h))
	}

	// Account
	handle("POST /logout", s.authH.Logout)
	handle("GET /api/me", s.authH.Me)
	handle("PUT /api/me", s.authH.UpdateProfile)
	handle("PUT /api/me/password", s.authH.ChangePassword)
	handle("GET /api/meta", s.groceryH.Meta)

	// Households and membership
	handle("GET /api/households", s.householdH.List)
	handle("POST /api/households", s.householdH.Create)
	handle("POST /api/households/join", s.householdH.JoinByCode)
	handle("GET /api/households/{household_id}", s.householdH.Get)
	handle("PUT /api/households/{household_id}", s.householdH.Update)
	handle("DELETE /api/households/{household_id}", s.householdH.Delete)
	handle("POST /api/households/{household_id}/join", s.householdH.Join)
	handle("POST /api/households/{household_id}/leave", s.householdH.Leave)
	handle("GET /api/households/{household_id}/members", s.householdH.Members)
	handle("DELETE /api/households/{household_id}/members/{user_id}", s.householdH.RemoveMember)
	handle("GET /api/households/{household_id}/requests", s.householdH.Pending)
	handle("POST /api/households/{household_id}/requests/{user_id}", s.householdH.Decide)
	handle("GET /api/households/{household_id}/ws", s.householdH.Events)

	// Inventory
	handle("GET /api/households/{household_id}/items", s.groceryH.List)
	handle("POST /api/households/{household_id}/items", s.groceryH.Create)
	handle("GET /api/households/{household_id}/items/{id}", s.groceryH.Get)
	handle("PUT /api/households/{household_id}/items/{id}", s.groceryH.Update)
	handle("DELETE /api/households/{household_id}/items/{id}", s.groceryH.Delete)
	handle("GET /api/households/{household_id}/dashboard", s.groceryH.Dashboard)
	handle("GET /api/households/{household_id}/shopping-list", s.groceryH.ShoppingList)
	handle("GET /api/households/{household_id}/shopping-list/export", s.groceryH.ShoppingExport)

	handle("GET /api/households/{household_id}/audit", s.auditH.List)

	handle("GET /api/backup", s.backupStatusHandler)

	if s.pushH != nil {
		handle("GET /api/push/vapid-key", s.pushH.VAPIDKey)
		handle("GET /api/push/subscriptions", s.pushH.List)
		handle("POST /api/push/subscriptions", s.pushH.Subscribe)
		handle("DELETE /api/push/subscriptions/{id}", s.pushH.Unsubscribe)
	}
}

// backupView is what any signed-in user may see of the backup state. Object
// keys and error text stay in the logs and metrics.
type backupView struct {
	State      backup.State `json:"state"`
	LastBackup *time.Time   `json:"last_backup,omitempty"`
}

func viewBackup(st backup.Status) backupView {
	return backupView{State: st.State, LastBackup: st.LastBackup}
}

func (s *Server) backupStatusHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(viewBackup(s.backups.Status()))
}
