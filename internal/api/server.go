// Package api exposes tasks, analytics and AI helpers over HTTP.
package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"taskwise/internal/model"
	"taskwise/internal/routine"
	"taskwise/internal/service"
)

// UserHeader carries the stable id issued by the external auth provider.
const UserHeader = "X-User-ID"

// Users makes sure a caller has a user row before any task is written.
type Users interface {
	Ensure(ctx context.Context, userID string) (*model.User, error)
}

type Server struct {
	tasks     *service.TaskService
	notif     *service.NotificationService
	users     Users
	converter *routine.Converter
	gatherer  prometheus.Gatherer
	loc       *time.Location
	log       *zap.Logger
	now       func() time.Time
}

type Option func(*Server)

// WithConverter enables the routine and priority endpoints.
func WithConverter(c *routine.Converter) Option { return func(s *Server) { s.converter = c } }

func WithGatherer(g prometheus.Gatherer) Option { return func(s *Server) { s.gatherer = g } }

func WithLocation(loc *time.Location) Option { return func(s *Server) { s.loc = loc } }

func WithLogger(log *zap.Logger) Option { return func(s *Server) { s.log = log } }

func NewServer(tasks *service.TaskService, notif *service.NotificationService, users Users, opts ...Option) *Server {
	s := &Server{
		tasks: tasks,
		notif: notif,
		users: users,
		loc:   time.Local,
		log:   zap.NewNop(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"})
	})
	if s.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.identify)

		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", s.listTasks)
			r.Post("/", s.createTask)
			r.Post("/batch", s.createBatch)
			r.Get("/{id}", s.getTask)
			r.Patch("/{id}", s.updateTask)
			r.Delete("/{id}", s.deleteTask)
			r.Put("/{id}/completion", s.setCompletion)
		})
		r.Get("/analytics", s.analytics)
		r.Post("/routine/parse", s.parseRoutine)
		r.Post("/priority/suggest", s.suggestPriority)
		r.Put("/notifications", s.setNotifications)
		r.Post("/notifications/test", s.sendTestNotification)
		r.Post("/push-addresses", s.registerAddress)
	})
	return r
}

type ctxKey struct{}

func userID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// identify rejects anonymous calls and provisions the user on first sight.
func (s *Server) identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(UserHeader))
		if id == "" {
			writeErr(w, http.StatusUnauthorized, "missing "+UserHeader+" header")
			return
		}
		if _, err := s.users.Ensure(r.Context(), id); err != nil {
			s.log.Error("ensure user", zap.String("user_id", id), zap.Error(err))
			writeErr(w, http.StatusInternalServerError, "internal error")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
	})
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
