package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/launchwatch/monitor/internal/chain/rpcpool"
	"github.com/launchwatch/monitor/internal/config"
	"github.com/launchwatch/monitor/internal/lifecycle"
	"github.com/launchwatch/monitor/internal/model"
)

const (
	clientSendBuffer = 32
	writeTimeout     = 10 * time.Second
	pingInterval     = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// HealthSource supplies the live endpoint health snapshot for
// /api/health; *rpcpool.Pool satisfies it via HealthSnapshot.
type HealthSource interface {
	HealthSnapshot(ctx context.Context) rpcpool.Health
}

// UpcomingLaunchesSource supplies /api/upcoming-launches;
// *catalog.Client satisfies it via UpcomingLaunches.
type UpcomingLaunchesSource interface {
	UpcomingLaunches(ctx context.Context) ([]model.ProjectDescriptor, error)
}

// Server is the dashboard's REST + push-socket HTTP surface.
type Server struct {
	log      zerolog.Logger
	surface  *Surface
	health   HealthSource
	catalog  UpcomingLaunchesSource
	cfg      config.PublicView
	mux      *http.ServeMux
}

// NewServer builds the HTTP handler; cfg is rendered verbatim as the
// /api/config response body.
func NewServer(surface *Surface, health HealthSource, catalog UpcomingLaunchesSource, cfg config.PublicView, log zerolog.Logger) *Server {
	s := &Server{log: log, surface: surface, health: health, catalog: catalog, cfg: cfg}
	s.mux = http.NewServeMux()
	s.mux.HandleFunc("/api/state", s.handleState)
	s.mux.HandleFunc("/api/trades", s.handleTrades)
	s.mux.HandleFunc("/api/events", s.handleEvents)
	s.mux.HandleFunc("/api/config", s.handleConfig)
	s.mux.HandleFunc("/api/health", s.handleHealth)
	s.mux.HandleFunc("/api/upcoming-launches", s.handleUpcomingLaunches)
	s.mux.HandleFunc("/ws", s.handleWebsocket)
	return s
}

// ServeHTTP satisfies http.Handler, applying the open dashboard CORS
// policy to every route before dispatching to the mux.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.mux.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, log zerolog.Logger, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("failed to encode response body")
	}
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.log, s.surface.State())
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.log, s.surface.Trades())
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.log, s.surface.Events())
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.log, s.cfg)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := s.health.HealthSnapshot(r.Context())
	writeJSON(w, s.log, HealthResponse{
		CurrentHTTPEndpoint: h.CurrentHTTPEndpoint,
		Healthy:             h.Healthy,
		LatencyMs:           h.LatencyMs,
		CurrentPushEndpoint: h.CurrentPushEndpoint,
		PushConnected:       h.PushConnected,
	})
}

func (s *Server) handleUpcomingLaunches(w http.ResponseWriter, r *http.Request) {
	launches, err := s.catalog.UpcomingLaunches(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, s.log, launches)
}

// handleWebsocket upgrades the connection, sends one state_change
// frame carrying the current snapshot, then relays every subsequent
// broadcast from the Surface until the client disconnects. When the
// client's outbound queue is full, the oldest queued frame is dropped.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := newWSClient(conn, s.log)
	client.enqueue(EventView{Kind: lifecycle.EventStateChange, Timestamp: time.Now(), Data: s.surface.State()})

	relayCh := make(chan EventView, 256)
	sub := s.surface.Subscribe(relayCh)
	defer sub.Unsubscribe()

	done := make(chan struct{})
	go client.writeLoop(done)
	go client.readLoop(done)

	for {
		select {
		case ev := <-relayCh:
			client.enqueue(ev)
		case err := <-sub.Err():
			if err != nil {
				s.log.Warn().Err(err).Msg("event feed subscription error")
			}
			client.close()
			<-done
			return
		case <-done:
			return
		}
	}
}

// wsClient owns one websocket connection's outbound queue: enqueue
// never blocks, dropping the oldest frame when the client can't keep
// up so one slow dashboard tab never stalls the broadcast loop.
type wsClient struct {
	conn    *websocket.Conn
	log     zerolog.Logger
	outbound chan EventView
	closeOnce chan struct{}
}

func newWSClient(conn *websocket.Conn, log zerolog.Logger) *wsClient {
	return &wsClient{
		conn:      conn,
		log:       log,
		outbound:  make(chan EventView, clientSendBuffer),
		closeOnce: make(chan struct{}),
	}
}

func (c *wsClient) enqueue(ev EventView) {
	select {
	case c.outbound <- ev:
	default:
		select {
		case <-c.outbound:
		default:
		}
		select {
		case c.outbound <- ev:
		default:
		}
		c.log.Warn().Msg("dashboard client outbound queue full, dropped a frame")
	}
}

func (c *wsClient) writeLoop(done chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case ev := <-c.outbound:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteJSON(ev); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		case <-c.closeOnce:
			return
		case <-done:
			return
		}
	}
}

// readLoop only drains incoming frames to detect client-initiated
// close; the dashboard never sends commands over this socket.
func (c *wsClient) readLoop(done chan struct{}) {
	defer close(done)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *wsClient) close() {
	select {
	case <-c.closeOnce:
	default:
		close(c.closeOnce)
		c.conn.Close()
	}
}
