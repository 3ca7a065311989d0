package gateway

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/flipmatch/flipmatch/internal/broadcast"
	"github.com/flipmatch/flipmatch/internal/game"
)

// Service ties the HTTP handlers, the WebSocket pool and the broadcast
// relay together into one server-side edge.
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	gameHandler       *GameHandler
	relay             *Relay
}

// Config holds configuration for the gateway service.
type Config struct {
	ConnectionConfig ConnectionConfig
}

// DefaultConfig returns default gateway configuration.
func DefaultConfig() Config {
	return Config{ConnectionConfig: DefaultConnectionConfig()}
}

// NewService creates a gateway over the game app and broadcaster.
func NewService(cfg Config, app *game.App, b broadcast.Broadcaster, authorizer ChannelAuthorizer) *Service {
	cm := NewConnectionManager(cfg.ConnectionConfig)
	relay := NewRelay(cm, b)

	return &Service{
		connectionManager: cm,
		wsHandler:         NewWebSocketHandler(cm, relay),
		gameHandler:       NewGameHandler(app, authorizer),
		relay:             relay,
	}
}

// Start runs the fan-out loop until ctx is cancelled.
func (s *Service) Start(ctx context.Context) {
	log.Info().Msg("starting gateway service")
	go s.connectionManager.Start(ctx)

	<-ctx.Done()
	log.Info().Msg("gateway service shutting down")
	s.relay.Stop()
}

// RegisterRoutes registers all gateway routes.
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.gameHandler.RegisterRoutes(mux)
	s.wsHandler.RegisterRoutes(mux)
	log.Info().Msg("gateway routes registered")
}

// NewServer builds the HTTP server around the gateway: CORS wrap, health
// check and h2c.
func NewServer(addr string, svc *Service) *http.Server {
	mux := http.NewServeMux()

	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	svc.RegisterRoutes(mux)

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Error().Err(err).Msg("failed to write health check response")
		}
	})

	handler := c.Handler(mux)

	return &http.Server{
		Addr:    fmt.Sprintf(":%s", addr),
		Handler: h2c.NewHandler(handler, &http2.Server{}),
	}
}
