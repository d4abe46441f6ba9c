package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"eventtimers/internal/config"
	"eventtimers/internal/ics"
	appLog "eventtimers/internal/log"
	"eventtimers/internal/model"
	"eventtimers/internal/notify"
	"eventtimers/internal/store"
)

const (
	// maxHorizonHours bounds ?hours= on listing endpoints.
	maxHorizonHours = 24 * 14

	agendaCacheTTL = 30 * time.Second
)

// Server exposes the scheduler outputs and subscription editing over HTTP.
type Server struct {
	cfg    *config.Config
	store  *store.Store
	sched  *notify.Scheduler
	router *mux.Router

	now      func() time.Time
	onChange func()

	// In-memory cache for agenda responses; invalidated whenever
	// subscriptions change.
	agendaMu    sync.RWMutex
	agendaCache map[agendaKey]agendaEntry
}

type agendaKey struct {
	hours int
	all   bool
}

type agendaEntry struct {
	entries   []ics.Entry
	from      time.Time
	fetchedAt time.Time
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, st *store.Store, sched *notify.Scheduler) *Server {
	s := &Server{
		cfg:         cfg,
		store:       st,
		sched:       sched,
		router:      mux.NewRouter(),
		now:         time.Now,
		agendaCache: make(map[agendaKey]agendaEntry),
	}
	s.registerRoutes()
	return s
}

// SetClock replaces the wall clock, for tests.
func (s *Server) SetClock(now func() time.Time) {
	s.now = now
}

// OnChange registers a callback run after every subscription edit, used to
// persist the configuration.
func (s *Server) OnChange(fn func()) {
	s.onChange = fn
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.router)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// An empty username or password disables auth.
	if s.cfg.BasicAuth.Username == "" || s.cfg.BasicAuth.Password == "" {
		return false
	}
	return true
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="eventtimers", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// ListenAndServe serves on cfg.Listen until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) registerRoutes() {
	r := s.router
	r.HandleFunc("/health", s.handleHealth).Methods("GET")
	r.HandleFunc("/calendar.ics", s.handleCalendar).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/upcoming", s.handleUpcoming).Methods("GET")
	api.HandleFunc("/toasts", s.handleToasts).Methods("GET")
	api.HandleFunc("/toasts/toggle", s.handleToggleToasts).Methods("POST")
	api.HandleFunc("/toasts/{id:[0-9]+}/dismiss", s.handleDismiss).Methods("POST")
	api.HandleFunc("/preview", s.handlePreview).Methods("POST")
	api.HandleFunc("/subscriptions", s.handleListSubscriptions).Methods("GET")
	api.HandleFunc("/subscriptions/{track}/{event}", s.handleSubscribe).Methods("PUT")
	api.HandleFunc("/subscriptions/{track}/{event}", s.handleUnsubscribe).Methods("DELETE")
	api.HandleFunc("/occurrences", s.handleOccurrences).Methods("GET")
	api.HandleFunc("/stats", s.handleStats).Methods("GET")
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

type upcomingItem struct {
	model.UpcomingEntry
	Countdown string `json:"countdown"`
	Active    bool   `json:"active"`
	Clipboard string `json:"clipboard,omitempty"`
}

type upcomingResponse struct {
	GeneratedAt time.Time      `json:"generated_at"`
	Entries     []upcomingItem `json:"entries"`
}

func (s *Server) handleUpcoming(w http.ResponseWriter, _ *http.Request) {
	entries := s.sched.Upcoming()
	resp := upcomingResponse{
		GeneratedAt: s.now().UTC(),
		Entries:     make([]upcomingItem, 0, len(entries)),
	}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, upcomingItem{
			UpcomingEntry: e,
			Countdown:     e.Countdown(),
			Active:        e.Active(),
			Clipboard:     s.clipboard(e.EventID, e.CopyText),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

type toastItem struct {
	model.Toast
	Caption   string `json:"caption"`
	Clipboard string `json:"clipboard,omitempty"`
}

func (s *Server) toastView(t model.Toast) toastItem {
	return toastItem{Toast: t, Caption: t.Caption(), Clipboard: s.clipboard(t.EventID, t.CopyText)}
}

func (s *Server) clipboard(id model.EventID, copyText string) string {
	withName := s.cfg != nil && s.cfg.CopyWithEventName
	return model.ClipboardText(id.Event, copyText, withName)
}

type toastsResponse struct {
	Enabled bool        `json:"enabled"`
	Toasts  []toastItem `json:"toasts"`
	Preview *toastItem  `json:"preview,omitempty"`
}

func (s *Server) handleToasts(w http.ResponseWriter, _ *http.Request) {
	toasts := s.sched.Toasts()
	resp := toastsResponse{
		Enabled: s.store.Settings().ToastsEnabled,
		Toasts:  make([]toastItem, 0, len(toasts)),
	}
	for _, t := range toasts {
		resp.Toasts = append(resp.Toasts, s.toastView(t))
	}
	if p, ok := s.sched.Preview(); ok {
		item := s.toastView(p)
		resp.Preview = &item
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleToggleToasts(w http.ResponseWriter, _ *http.Request) {
	enabled := s.store.ToggleToasts()
	appLog.Info("toasts toggled", "enabled", enabled)
	s.changed()
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": enabled})
}

func (s *Server) handleDismiss(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid toast id")
		return
	}
	if !s.sched.Dismiss(id) {
		writeError(w, http.StatusNotFound, "toast not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type previewRequest struct {
	// Reminder selects a configured reminder by name; empty uses the first.
	Reminder string `json:"reminder"`
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}

	reminders := s.store.Reminders()
	rem := model.Reminder{Name: "Preview", MinutesBefore: 5, Color: model.DefaultEventColor}
	found := req.Reminder == ""
	for _, candidate := range reminders {
		if req.Reminder == "" || candidate.Name == req.Reminder {
			rem = candidate
			found = true
			break
		}
	}
	if !found {
		writeError(w, http.StatusNotFound, "reminder not found")
		return
	}

	t := s.sched.ShowPreview(rem, s.now())
	writeJSON(w, http.StatusOK, s.toastView(t))
}

type subscriptionsResponse struct {
	Persistent []model.EventID `json:"persistent"`
	OneShot    []model.EventID `json:"one_shot"`
}

func (s *Server) handleListSubscriptions(w http.ResponseWriter, _ *http.Request) {
	persistent, oneShot := s.store.ExportSubscriptions()
	writeJSON(w, http.StatusOK, subscriptionsResponse{Persistent: persistent, OneShot: oneShot})
}

func eventIDFromVars(r *http.Request) model.EventID {
	v := mux.Vars(r)
	return model.NewEventID(v["track"], v["event"])
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	id := eventIDFromVars(r)
	if _, _, ok := s.store.Lookup(id); !ok {
		writeError(w, http.StatusNotFound, "event not found")
		return
	}
	oneShot := parseBool(r.URL.Query().Get("one_shot"))
	s.store.Subscribe(id, oneShot)
	appLog.Info("subscribed", "event", id.String(), "one_shot", oneShot)
	s.changed()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	id := eventIDFromVars(r)
	if !s.store.Unsubscribe(id) {
		writeError(w, http.StatusNotFound, "not subscribed")
		return
	}
	appLog.Info("unsubscribed", "event", id.String())
	s.changed()
	w.WriteHeader(http.StatusNoContent)
}

type occurrencesResponse struct {
	From    time.Time   `json:"from"`
	To      time.Time   `json:"to"`
	Entries []ics.Entry `json:"entries"`
}

func (s *Server) handleOccurrences(w http.ResponseWriter, r *http.Request) {
	hours := s.horizonHours(r)
	all := parseBool(r.URL.Query().Get("all"))

	entries, from, err := s.agenda(hours, all)
	if err != nil {
		appLog.Error("agenda failed", err, "hours", hours)
		writeError(w, http.StatusInternalServerError, "failed to list occurrences")
		return
	}
	writeJSON(w, http.StatusOK, occurrencesResponse{
		From:    from,
		To:      from.Add(time.Duration(hours) * time.Hour),
		Entries: entries,
	})
}

func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	hours := s.horizonHours(r)
	now := s.now()
	snap := s.store.Snapshot()

	cal, err := ics.Export(snap.Tracks, snap.Subscriptions, ics.Options{
		From: now,
		To:   now.Add(time.Duration(hours) * time.Hour),
		All:  parseBool(r.URL.Query().Get("all")),
		Name: "Event Timers",
	}, now)
	if err != nil {
		appLog.Error("calendar export failed", err)
		writeError(w, http.StatusInternalServerError, "failed to export calendar")
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if err := cal.SerializeTo(w); err != nil {
		appLog.Error("failed to write calendar", err)
	}
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.sched.Stats())
}

// agenda returns cached entries when the same query ran recently.
func (s *Server) agenda(hours int, all bool) ([]ics.Entry, time.Time, error) {
	key := agendaKey{hours: hours, all: all}
	now := s.now()

	s.agendaMu.RLock()
	ce, ok := s.agendaCache[key]
	s.agendaMu.RUnlock()
	if ok && now.Sub(ce.fetchedAt) < agendaCacheTTL {
		return ce.entries, ce.from, nil
	}

	snap := s.store.Snapshot()
	entries, err := ics.Agenda(snap.Tracks, snap.Subscriptions, ics.Options{
		From: now,
		To:   now.Add(time.Duration(hours) * time.Hour),
		All:  all,
	})
	if err != nil {
		return nil, now, err
	}
	if entries == nil {
		entries = []ics.Entry{}
	}

	s.agendaMu.Lock()
	s.agendaCache[key] = agendaEntry{entries: entries, from: now, fetchedAt: now}
	s.agendaMu.Unlock()
	return entries, now, nil
}

func (s *Server) changed() {
	s.agendaMu.Lock()
	s.agendaCache = make(map[agendaKey]agendaEntry)
	s.agendaMu.Unlock()
	if s.onChange != nil {
		s.onChange()
	}
}

func (s *Server) horizonHours(r *http.Request) int {
	def := 24
	if s.cfg != nil && s.cfg.HorizonHours > 0 {
		def = s.cfg.HorizonHours
	}
	h := parseIntDefault(r.URL.Query().Get("hours"), def)
	if h <= 0 {
		h = def
	}
	if h > maxHorizonHours {
		h = maxHorizonHours
	}
	return h
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func parseBool(s string) bool {
	b, _ := strconv.ParseBool(s)
	return b
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
