package transport

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Polqt/yrepl/config"
	"github.com/Polqt/yrepl/session"
	"github.com/Polqt/yrepl/syncproto"
	"github.com/Polqt/yrepl/yerr"
)

// wsSender adapts a WSConn to session.Sender.
type wsSender struct{ ws *WSConn }

func (s *wsSender) SendBinary(b []byte) error { return s.ws.WriteMessage(b) }
func (s *wsSender) Close() error              { return s.ws.Close() }
func (s *wsSender) RemoteAddr() string        { return s.ws.RemoteAddr() }

// Server wires the Hub onto a gin engine: the WebSocket sync endpoint plus
// the operational HTTP surface (spec.md §11 domain stack: gin + CORS).
type Server struct {
	hub    *session.Hub
	log    *zap.Logger
	cfg    *config.Config
	engine *gin.Engine
}

// NewServer builds the gin engine and registers routes.
func NewServer(hub *session.Hub, cfg *config.Config, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(cors.New(cors.Config{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{"GET", "POST"},
		AllowHeaders: []string{"Authorization", "Content-Type"},
	}))

	s := &Server{hub: hub, log: log.Named("http"), cfg: cfg, engine: engine}
	engine.GET("/health", s.handleHealth)
	engine.GET("/rooms/:room/snapshot", s.handleSnapshot)
	engine.GET("/ws/:room", s.handleWebSocket)
	return s
}

// Handler returns the http.Handler to pass to an http.Server.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleSnapshot returns the live state vector and delete-run counts for a
// room without requiring a WebSocket connection — a lightweight
// operational probe (spec.md §11 domain stack table).
func (s *Server) handleSnapshot(c *gin.Context) {
	room := s.hub.GetOrCreateRoom(c.Param("room"))
	sv := room.Replica().StateVector().Snapshot()
	deletes := room.Replica().DeleteRunsSnapshot()
	deleteCounts := make(map[uint32]int, len(deletes))
	for client, runs := range deletes {
		deleteCounts[client] = len(runs)
	}
	c.JSON(http.StatusOK, gin.H{
		"room":          room.ID,
		"state_vector":  sv,
		"delete_counts": deleteCounts,
	})
}

func (s *Server) authorize(c *gin.Context) bool {
	if s.cfg.AuthMode == config.AuthNone {
		return true
	}
	token := c.Query("token")
	if token == "" {
		token = c.GetHeader("Authorization")
	}
	if token != s.cfg.AuthToken {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return false
	}
	return true
}

// handleWebSocket upgrades the connection and runs the sync-protocol read
// loop for one client (spec.md §4.9).
func (s *Server) handleWebSocket(c *gin.Context) {
	if !s.authorize(c) {
		return
	}
	roomID := c.Param("room")

	conn, rw, err := wsHandshake(c.Writer, c.Request)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "websocket upgrade failed: " + err.Error()})
		return
	}
	ws := &WSConn{conn: conn, rw: rw}

	client := s.hub.Join(roomID, &wsSender{ws: ws})
	defer s.hub.Leave(client)

	for {
		payload, err := ws.ReadMessage()
		if err != nil {
			if err != io.EOF {
				s.log.Debug("read loop ended", zap.String("client", client.ID), zap.Error(err))
			}
			return
		}
		env, err := syncproto.DecodeEnvelope(payload)
		if err != nil {
			s.log.Warn("bad envelope", zap.Error(err))
			continue
		}
		if err := s.hub.Dispatch(client, env); err != nil {
			s.log.Warn("dispatch failed", zap.String("client", client.ID), zap.Error(err))
			if errors.Is(err, yerr.ErrProtocolMismatch) {
				s.hub.DestroyRoom(roomID)
				return
			}
		}
	}
}
