package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/RezaEskandarii/bulkmail/internal/broadcast"
	"github.com/RezaEskandarii/bulkmail/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const shutdownTimeout = 15 * time.Second

type ServerConfig struct {
	Port              uint
	JWTSecret         string
	CORSOrigins       []string
	MaxUploadBytes    int64
	DefaultTemplateID int64
}

type Server struct {
	conf      ServerConfig
	handler   *HttpRouteHandler
	users     store.UserStore
	validator *TokenValidator
	logger    *zap.Logger
}

// NewServer wires the HTTP and websocket surface. ctx bounds the batches the
// server admits and should live as long as the process.
func NewServer(
	ctx context.Context,
	conf ServerConfig,
	submitter BatchSubmitter,
	logs store.DeliveryLogStore,
	users store.UserStore,
	templates store.TemplateStore,
	hub *broadcast.Hub,
	logger *zap.Logger,
) *Server {
	return &Server{
		conf:      conf,
		users:     users,
		validator: NewTokenValidator(conf.JWTSecret),
		logger:    logger,
		handler: &HttpRouteHandler{
			appCtx:            ctx,
			submitter:         submitter,
			logs:              logs,
			templates:         templates,
			hub:               hub,
			defaultTemplateID: conf.DefaultTemplateID,
			maxUploadBytes:    conf.MaxUploadBytes,
			upgrader: websocket.Upgrader{
				ReadBufferSize:  1024,
				WriteBufferSize: 1024,
				CheckOrigin:     allowOrigin(conf.CORSOrigins),
			},
			logger: logger,
		},
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.conf.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", s.handler.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware(s.validator, s.users, s.logger))

		r.Route("/api/emails", func(r chi.Router) {
			r.Post("/bulk", s.handler.handleBulkEmail)
			r.Get("/logs", s.handler.handleListLogs)
			r.Get("/logs/{id}", s.handler.handleGetLog)
			r.Get("/stats", s.handler.handleStats)
		})
		r.Get("/api/templates", s.handler.handleListTemplates)
		r.Get("/ws", s.handler.handleWebSocket)

		r.Route("/api/admin", func(r chi.Router) {
			r.Use(adminOnly)
			r.Get("/logs", s.handler.handleAdminListLogs)
			r.Delete("/logs/{id}", s.handler.handleAdminDeleteLog)
		})
	})
	return r
}

// Serve listens until ctx ends, then drains in-flight requests.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.conf.Port),
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	s.logger.Info("http server stopped")
	return nil
}

func allowOrigin(origins []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(origins, "*") || slices.Contains(origins, origin)
	}
}
