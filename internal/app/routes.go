package app

import (
	"net/http"

	"github.com/Raimguhinov/ring-go/internal/alarm"
	"github.com/Raimguhinov/ring-go/internal/auth"
	"github.com/Raimguhinov/ring-go/internal/config"
	mwlogger "github.com/Raimguhinov/ring-go/internal/delivery/http/middleware/logger"
	"github.com/Raimguhinov/ring-go/internal/feed"
	"github.com/Raimguhinov/ring-go/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
)

func SetupRouter(
	l *logger.Logger,
	cfg *config.Config,
	repo alarm.Repository,
	f *feed.Feed,
	authProvider auth.AuthProvider,
) http.Handler {
	s := chi.NewRouter()
	s.Use(middleware.RequestID)
	s.Use(mwlogger.New(l))
	s.Use(middleware.Recoverer)
	s.Use(cors.New(cors.Options{
		AllowedMethods:     cfg.HTTP.CORS.AllowedMethods,
		AllowedOrigins:     cfg.HTTP.CORS.AllowedOrigins,
		AllowCredentials:   cfg.HTTP.CORS.AllowCredentials,
		AllowedHeaders:     cfg.HTTP.CORS.AllowedHeaders,
		OptionsPassthrough: cfg.HTTP.CORS.OptionsPassthrough,
		ExposedHeaders:     cfg.HTTP.CORS.ExposedHeaders,
		Debug:              cfg.HTTP.CORS.Debug,
	}).Handler)
	s.Use(authProvider.Middleware())

	h := newHandler(repo, f, l)

	s.Route("/rooms/{roomID}", func(r chi.Router) {
		r.Post("/alarms", h.createAlarm)
		r.Get("/alarms", h.listAlarms)
		r.Get("/triggers/ringing", h.listRinging)
	})

	s.Route("/alarms/{alarmID}", func(r chi.Router) {
		r.Get("/", h.getAlarm)
		r.Patch("/", h.updateAlarm)
		r.Delete("/", h.deleteAlarm)
	})

	s.Route("/triggers/{triggerID}", func(r chi.Router) {
		r.Get("/", h.getTrigger)
		r.Post("/dismiss", h.dismissTrigger)
	})

	return s
}
