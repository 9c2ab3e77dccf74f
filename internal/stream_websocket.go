package internal

import (
	"context"
	"encoding/hex"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/voltsys/batlog/libraries/logger"
	"github.com/voltsys/batlog/libraries/server"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

type wsSubscribeMessage struct {
	Type    string   `json:"type"`
	Serials []string `json:"serials,omitempty"`
}

type wsRecordMessage struct {
	Type     string `json:"type"`
	Serial   string `json:"serial"`
	Index    uint32 `json:"index"`
	Hash     uint32 `json:"hash"`
	HexData  string `json:"hex_data,omitempty"`
	StoredAt uint32 `json:"stored_at"`
}

type wsHeartbeatMessage struct {
	Type        string `json:"type"`
	Subscribers int    `json:"subscribers"`
}

type wsErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// StreamServer pushes freshly stored records to WebSocket clients. A
// client opens with a subscribe message naming the serials it wants
// (empty for all), then receives record messages until it disconnects.
type StreamServer struct {
	broadcaster *RecordBroadcaster
	maxClients  int
	heartbeat   time.Duration

	httpServer *http.Server
	clients    map[uint64]*wsClient
	clientsMu  sync.RWMutex
	nextID     atomic.Uint64

	closed atomic.Bool
	wg     sync.WaitGroup
}

type wsClient struct {
	id     uint64
	ws     *websocket.Conn
	sub    *RecordSub
	cancel context.CancelFunc
}

func NewStreamServer(broadcaster *RecordBroadcaster, maxClients int, heartbeat time.Duration) *StreamServer {
	if maxClients <= 0 {
		maxClients = 100
	}
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}
	return &StreamServer{
		broadcaster: broadcaster,
		maxClients:  maxClients,
		heartbeat:   heartbeat,
		clients:     make(map[uint64]*wsClient),
	}
}

func (s *StreamServer) Listen(address string) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleWebSocket)
	mux.HandleFunc("/stream", s.handleWebSocket)

	s.httpServer = &http.Server{
		Handler:     mux,
		ReadTimeout: 30 * time.Second,
	}

	listener := server.SocketListen(address)
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			logger.Warning("Stream server error: %v", err)
		}
	}()

	logger.Printf("startup", "Stream server listening on %s", address)
}

func (s *StreamServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.closed.Load() {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}

	s.clientsMu.RLock()
	connCount := len(s.clients)
	s.clientsMu.RUnlock()

	if connCount >= s.maxClients {
		http.Error(w, "max connections reached", http.StatusServiceUnavailable)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  []string{"*"},
		CompressionMode: websocket.CompressionDisabled,
	})
	if err != nil {
		logger.Warning("WebSocket accept error: %v", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())

	var subMsg wsSubscribeMessage
	if err := wsjson.Read(ctx, conn, &subMsg); err != nil {
		cancel()
		conn.Close(websocket.StatusProtocolError, "invalid subscribe")
		return
	}
	if subMsg.Type != "subscribe" {
		wsjson.Write(ctx, conn, wsErrorMessage{Type: "error", Message: "expected subscribe message"})
		cancel()
		conn.Close(websocket.StatusProtocolError, "invalid message type")
		return
	}

	filter := RecordFilter{}
	if len(subMsg.Serials) > 0 {
		filter.Serials = make(map[string]struct{}, len(subMsg.Serials))
		for _, serial := range subMsg.Serials {
			filter.Serials[serial] = struct{}{}
		}
	}

	sub := s.broadcaster.Subscribe(filter)
	client := &wsClient{
		id:     s.nextID.Add(1),
		ws:     conn,
		sub:    sub,
		cancel: cancel,
	}

	s.clientsMu.Lock()
	s.clients[client.id] = client
	connCount = len(s.clients)
	s.clientsMu.Unlock()

	logger.Printf("stream", "WebSocket client %d connected (%d/%d)", client.id, connCount, s.maxClients)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.recvLoop(ctx, client)
	}()

	err = s.sendLoop(ctx, client)
	s.removeClient(client)

	if err != nil && err != context.Canceled {
		logger.Printf("stream", "WebSocket client %d error: %v", client.id, err)
	}
}

func (s *StreamServer) sendLoop(ctx context.Context, client *wsClient) error {
	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case rec, ok := <-client.sub.Records():
			if !ok {
				return nil
			}
			msg := wsRecordMessage{
				Type:     "record",
				Serial:   rec.Serial,
				Index:    rec.Index,
				Hash:     rec.Hash,
				StoredAt: rec.StoredAt,
			}
			if len(rec.Payload) > 0 {
				msg.HexData = hex.EncodeToString(rec.Payload)
			}
			if err := wsjson.Write(ctx, client.ws, msg); err != nil {
				return err
			}

		case <-heartbeat.C:
			msg := wsHeartbeatMessage{
				Type:        "heartbeat",
				Subscribers: s.broadcaster.SubscriberCount(),
			}
			if err := wsjson.Write(ctx, client.ws, msg); err != nil {
				return err
			}
		}
	}
}

// recvLoop drains client messages so pings and close frames are
// processed; any read error ends the connection.
func (s *StreamServer) recvLoop(ctx context.Context, client *wsClient) {
	for {
		if _, _, err := client.ws.Read(ctx); err != nil {
			client.cancel()
			return
		}
	}
}

func (s *StreamServer) removeClient(client *wsClient) {
	s.clientsMu.Lock()
	delete(s.clients, client.id)
	connCount := len(s.clients)
	s.clientsMu.Unlock()

	client.cancel()
	s.broadcaster.Unsubscribe(client.sub)
	client.ws.Close(websocket.StatusNormalClosure, "done")

	sent, dropped, uptime := client.sub.Stats()
	logger.Printf("stream", "WebSocket client %d disconnected (sent %d, dropped %d in %v, %d/%d)",
		client.id, sent, dropped, uptime.Round(time.Second), connCount, s.maxClients)
}

func (s *StreamServer) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if s.httpServer != nil {
		s.httpServer.Shutdown(ctx)
	}

	s.clientsMu.Lock()
	for _, client := range s.clients {
		client.cancel()
		client.ws.Close(websocket.StatusGoingAway, "server shutdown")
	}
	s.clientsMu.Unlock()

	s.wg.Wait()
}
