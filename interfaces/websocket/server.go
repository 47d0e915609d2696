package websocket

import (
	"errors"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	appsync "github.com/janaghoniem/Distributed-Mind-Mapping-Tool/application/sync"
	"github.com/janaghoniem/Distributed-Mind-Mapping-Tool/pkg/auth"
	pkgerrors "github.com/janaghoniem/Distributed-Mind-Mapping-Tool/pkg/errors"
)

// maxConnectionsPerMap bounds how many sessions may subscribe to one
// map at a time.
const maxConnectionsPerMap = 100

// Server upgrades HTTP requests on /ws/maps/{mapID} into editing
// sessions. A session authenticates with a JWT (token query parameter
// or Authorization header); in development mode a bare clientId query
// parameter is accepted instead.
type Server struct {
	hub        *Hub
	engine     *appsync.MergeEngine
	service    *appsync.SyncService
	upgrader   websocket.Upgrader
	jwtService *auth.JWTService
	allowAnon  bool
	logger     *zap.Logger
}

// NewServer creates a WebSocket server. A nil jwtService (or allowAnon)
// enables clientId-based sessions.
func NewServer(hub *Hub, engine *appsync.MergeEngine, service *appsync.SyncService, jwtService *auth.JWTService, allowAnon bool, logger *zap.Logger) *Server {
	return &Server{
		hub:     hub,
		engine:  engine,
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		jwtService: jwtService,
		allowAnon:  allowAnon,
		logger:     logger,
	}
}

// HandleConnection upgrades the request and starts the session. The
// mapID is taken from the URL path by the router and passed in.
func (s *Server) HandleConnection(w http.ResponseWriter, r *http.Request, mapID string) {
	clientID, err := s.authenticate(r)
	if err != nil {
		s.logger.Warn("websocket authentication failed",
			zap.Error(err),
			zap.String("remoteAddr", r.RemoteAddr),
		)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	// The map must exist before a session may subscribe to it.
	if _, err := s.service.GetMap(r.Context(), mapID); err != nil {
		if pkgerrors.IsNotFound(err) {
			http.Error(w, "map not found", http.StatusNotFound)
			return
		}
		s.logger.Error("failed to load map for session",
			zap.Error(err),
			zap.String("mapID", mapID),
		)
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}

	if s.hub.SubscriberCount(mapID) >= maxConnectionsPerMap {
		http.Error(w, "connection limit exceeded", http.StatusTooManyRequests)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("failed to upgrade connection",
			zap.Error(err),
			zap.String("remoteAddr", r.RemoteAddr),
		)
		return
	}

	client := NewClient(clientID, mapID, s.hub, conn, s.engine, s.logger)
	client.Start()

	s.logger.Info("websocket session established",
		zap.String("mapID", mapID),
		zap.String("clientID", clientID),
		zap.String("connectionID", client.ID()),
		zap.String("remoteAddr", r.RemoteAddr),
	)
}

func (s *Server) authenticate(r *http.Request) (string, error) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = r.Header.Get("Authorization")
	}
	if token != "" && s.jwtService != nil {
		claims, err := s.jwtService.ValidateToken(token)
		if err != nil {
			return "", err
		}
		return claims.ClientID, nil
	}

	if s.allowAnon {
		if clientID := r.URL.Query().Get("clientId"); clientID != "" {
			return clientID, nil
		}
	}
	return "", errors.New("no credentials provided")
}
