package httpapi

import (
	"context"
	"fabtracker/internal/app/command"
	"fabtracker/internal/app/logger"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Reports whether a backing service answers.
type HealthCheck func(ctx context.Context) error

type Server struct {
	commands *command.Handler
	checks   map[string]HealthCheck
	logger   logger.LoggerInterface
}

func NewServer(commands *command.Handler, checks map[string]HealthCheck, logger logger.LoggerInterface) *Server {
	return &Server{
		commands: commands,
		checks:   checks,
		logger:   logger,
	}
}

func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", s.health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/guilds/{guildId}", func(r chi.Router) {
		r.Get("/config", s.getConfig)
		r.Get("/subscriptions", s.listSubscriptions)
		r.Post("/subscriptions", s.subscribe)
		r.Delete("/subscriptions", s.unsubscribe)
		r.Get("/products", s.listProducts)
		r.Put("/schedule", s.setSchedule)
		r.Put("/timezone", s.setTimezone)
		r.Put("/channels/{type}", s.setChannel)
		r.Put("/currency", s.setCurrency)
		r.Put("/language", s.setLanguage)
		r.Put("/mentions/{type}", s.setMention)
		r.Put("/announcements", s.setAnnouncements)
		r.Post("/check", s.forceCheck)
	})

	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wrapped := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()

		next.ServeHTTP(wrapped, r)

		s.logger.Println(r.Method, r.URL.Path, wrapped.Status(), time.Since(started).Round(time.Millisecond))
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	report := map[string]string{}

	for name, check := range s.checks {
		if err := check(r.Context()); err != nil {
			s.logger.Warn("Health check", name, "failed:", err)
			report[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}

		report[name] = "ok"
	}

	writeJSON(w, status, report, nil)
}
