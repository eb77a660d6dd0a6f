// Package server provides the HTTP server and routing for the forecast
// pipeline.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/voltatlas/prognos/internal/bus"
	"github.com/voltatlas/prognos/internal/config"
	"github.com/voltatlas/prognos/internal/database"
	"github.com/voltatlas/prognos/internal/storage"
)

// Config holds server configuration
type Config struct {
	Log         zerolog.Logger
	Config      *config.Config
	Bus         *bus.Bus
	UnitOfWork  storage.Factory
	LocationsDB *database.DB
	MeteringDB  *database.DB
	Port        int
}

// Server represents the HTTP server
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	bus            *bus.Bus
	uow            storage.Factory
	cfg            *config.Config
	systemHandlers *SystemHandlers
	eventStream    *EventStream
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:         chi.NewRouter(),
		log:            cfg.Log.With().Str("component", "server").Logger(),
		bus:            cfg.Bus,
		uow:            cfg.UnitOfWork,
		cfg:            cfg.Config,
		systemHandlers: NewSystemHandlers(cfg.Log, cfg.Config.DataDir, cfg.LocationsDB, cfg.MeteringDB),
		eventStream:    NewEventStream(cfg.Log),
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// EventStreamSink exposes the websocket broadcast for bus observation.
func (s *Server) EventStreamSink() *EventStream { return s.eventStream }

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
}

func (s *Server) setupRoutes() {
	locations := NewLocationHandlers(s.bus, s.uow, s.log)

	s.router.Route("/api", func(r chi.Router) {
		r.Route("/locations", func(r chi.Router) {
			r.Get("/", locations.HandleList)
			r.Post("/", locations.HandleCreate)
			r.Post("/update_predict_all", locations.HandleUpdatePredictAll)
			r.Post("/forward_to_partner", locations.HandleForwardToPartner)
			r.Route("/{locationID}", func(r chi.Router) {
				r.Get("/", locations.HandleGet)
				r.Put("/settings", locations.HandleUpdateSettings)
				r.Post("/update_location_data", locations.HandleUpdateHistoricData)
				r.Post("/calculate_predictions", locations.HandleCalculatePredictions)
				r.Post("/send_predictions", locations.HandleSendPredictions)
				r.Get("/predictions", locations.HandleListPredictions)
			})
		})
		r.Get("/system/health", s.systemHandlers.HandleHealth)
		r.Get("/events/ws", s.eventStream.HandleWebSocket)
	})
}

// Start begins serving HTTP requests
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	s.eventStream.Close()
	return s.server.Shutdown(ctx)
}
