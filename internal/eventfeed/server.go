// ABOUTME: WebSocket event feed server
// ABOUTME: Broadcasts player events to connected clients and executes their commands
package eventfeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Resonate-Protocol/streamplayer-go/pkg/streamplayer"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Path is the websocket endpoint
const Path = "/streamplayer"

// DefaultProgressInterval is the minimum spacing of progress messages
const DefaultProgressInterval = 250 * time.Millisecond

const (
	sendBuffer    = 64
	writeDeadline = 10 * time.Second
	pingInterval  = 30 * time.Second
	helloTimeout  = 5 * time.Second
)

var (
	// ErrUnknownCommand is reported for commands the server does not know
	ErrUnknownCommand = errors.New("unknown command")

	// ErrRejected is reported when the player ignores a command in its current state
	ErrRejected = errors.New("command rejected in current state")
)

// Controller is the player surface remote commands drive
type Controller interface {
	Play() error
	Pause() bool
	Resume() bool
	Stop()
	SeekTo(seconds int) (int64, error)
	SeekSeconds(seconds int) (int64, error)
	SetGain(linear float64) error
	SetMute(mute bool) error
	SetPan(pan float64) error
	SetBalance(balance float64) error
	Status() streamplayer.Status
}

// Config holds server configuration
type Config struct {
	Name             string
	ProgressInterval time.Duration
	Logger           *zap.Logger
}

// Server fans player events out to websocket clients. It is a
// streamplayer.Listener.
type Server struct {
	config   Config
	log      *zap.Logger
	ctrl     Controller
	serverID string
	upgrader websocket.Upgrader

	mu     sync.RWMutex
	peers  map[string]*peer
	closed bool
	opened *Message
	wg     sync.WaitGroup

	lastProgress atomic.Int64
}

type peer struct {
	id   string
	name string
	conn *websocket.Conn
	send chan Message
}

// New creates a server driving ctrl
func New(config Config, ctrl Controller) *Server {
	if config.ProgressInterval <= 0 {
		config.ProgressInterval = DefaultProgressInterval
	}
	if config.Logger == nil {
		config.Logger = zap.L()
	}
	return &Server{
		config:   config,
		log:      config.Logger.Named("eventfeed"),
		ctrl:     ctrl,
		serverID: uuid.New().String(),
		upgrader: websocket.Upgrader{
			// Non-browser clients send no Origin header; the feed is meant for trusted local networks.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		peers: make(map[string]*peer),
	}
}

// Handler returns the HTTP handler serving Path
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(Path, s.handleWebSocket)
	return mux
}

// Serve accepts connections on ln until ctx is done
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: helloTimeout}
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()

	s.log.Info("Event feed listening", zap.String("addr", ln.Addr().String()))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
		s.Close()
		<-errc
		return nil
	case err := <-errc:
		s.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Close drops every client and waits for their handlers to exit
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	for _, p := range s.peers {
		p.conn.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// Clients returns the number of connected clients
func (s *Server) Clients() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.peers)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	s.mu.RLock()
	closed := s.closed
	if !closed {
		s.wg.Add(1)
	}
	s.mu.RUnlock()
	if closed {
		conn.Close()
		return
	}
	defer s.wg.Done()

	s.log.Debug("New connection", zap.String("remote", r.RemoteAddr))
	s.handleConnection(conn)
}

func (s *Server) handleConnection(conn *websocket.Conn) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(helloTimeout))
	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		s.log.Warn("Failed to read hello", zap.Error(err))
		return
	}
	conn.SetReadDeadline(time.Time{})

	if msg.Type != TypeClientHello {
		s.reject(conn, "unexpected_message", fmt.Sprintf("expected %s, got %s", TypeClientHello, msg.Type))
		return
	}
	var hello ClientHello
	if err := msg.Decode(&hello); err != nil || hello.ClientID == "" || hello.Name == "" {
		s.reject(conn, "invalid_hello", "client hello needs client_id and name")
		return
	}

	p := &peer{
		id:   hello.ClientID,
		name: hello.Name,
		conn: conn,
		send: make(chan Message, sendBuffer),
	}

	s.mu.Lock()
	if _, exists := s.peers[p.id]; exists {
		s.mu.Unlock()
		s.log.Warn("Duplicate client ID rejected", zap.String("client_id", p.id), zap.String("name", p.name))
		s.reject(conn, "duplicate_client_id", "client ID already connected")
		return
	}
	s.peers[p.id] = p
	opened := s.opened
	s.mu.Unlock()

	s.log.Info("Client connected", zap.String("client_id", p.id), zap.String("name", p.name))

	s.queue(p, TypeServerHello, ServerHello{
		ServerID: s.serverID,
		Name:     s.config.Name,
		Version:  ProtocolVersion,
		Status:   s.ctrl.Status().String(),
		Commands: Commands(),
	})
	if opened != nil {
		s.enqueue(p, *opened)
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writer(p)
	}()

	defer func() {
		s.mu.Lock()
		delete(s.peers, p.id)
		s.mu.Unlock()
		close(p.send)
		<-writerDone
		s.log.Info("Client disconnected", zap.String("client_id", p.id), zap.String("name", p.name))
	}()

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug("WebSocket read ended", zap.String("client_id", p.id), zap.Error(err))
			}
			return
		}
		s.handleMessage(p, msg)
	}
}

func (s *Server) reject(conn *websocket.Conn, code, message string) {
	msg, err := NewMessage(TypeServerError, ServerError{Error: code, Message: message})
	if err != nil {
		return
	}
	conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	conn.WriteJSON(msg)
}

// writer sends queued messages and keepalive pings until the queue closes
func (s *Server) writer(p *peer) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-p.send:
			if !ok {
				return
			}
			p.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := p.conn.WriteJSON(msg); err != nil {
				s.log.Debug("Write failed", zap.String("client_id", p.id), zap.Error(err))
				p.conn.Close()
				return
			}
		case <-ticker.C:
			if err := p.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeDeadline)); err != nil {
				p.conn.Close()
			}
		}
	}
}

func (s *Server) handleMessage(p *peer, msg Message) {
	if msg.Type != TypeCommand {
		s.log.Debug("Ignoring message", zap.String("type", msg.Type))
		return
	}
	var cmd Command
	if err := msg.Decode(&cmd); err != nil {
		s.queue(p, TypeResult, Result{Error: err.Error()})
		return
	}
	s.log.Info("Remote command", zap.String("client_id", p.id), zap.String("command", cmd.Command), zap.Float64("value", cmd.Value))
	s.queue(p, TypeResult, s.execute(cmd))
}

func (s *Server) execute(cmd Command) Result {
	res := Result{Command: cmd.Command}
	var err error
	switch cmd.Command {
	case CommandPlay:
		err = s.ctrl.Play()
	case CommandPause:
		if !s.ctrl.Pause() {
			err = ErrRejected
		}
	case CommandResume:
		if !s.ctrl.Resume() {
			err = ErrRejected
		}
	case CommandStop:
		s.ctrl.Stop()
	case CommandSeekTo:
		res.Position, err = s.ctrl.SeekTo(int(cmd.Value))
	case CommandSeek:
		res.Position, err = s.ctrl.SeekSeconds(int(cmd.Value))
	case CommandGain:
		err = s.ctrl.SetGain(cmd.Value)
	case CommandMute:
		err = s.ctrl.SetMute(cmd.Mute)
	case CommandPan:
		err = s.ctrl.SetPan(cmd.Value)
	case CommandBalance:
		err = s.ctrl.SetBalance(cmd.Value)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Command)
	}
	if err != nil {
		res.Error = err.Error()
	}
	return res
}

func (s *Server) queue(p *peer, msgType string, payload any) {
	msg, err := NewMessage(msgType, payload)
	if err != nil {
		s.log.Error("Failed to encode message", zap.Error(err))
		return
	}
	s.enqueue(p, msg)
}

func (s *Server) enqueue(p *peer, msg Message) {
	select {
	case p.send <- msg:
	default:
		s.log.Debug("Client send buffer full, dropping message", zap.String("client_id", p.id), zap.String("type", msg.Type))
	}
}

func (s *Server) broadcast(msgType string, payload any) *Message {
	msg, err := NewMessage(msgType, payload)
	if err != nil {
		s.log.Error("Failed to encode message", zap.Error(err))
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.peers {
		s.enqueue(p, msg)
	}
	return &msg
}

// Opened broadcasts the source properties and keeps them for late joiners
func (s *Server) Opened(origin any, properties map[string]any) {
	props := make(map[string]any, len(properties))
	for k, v := range properties {
		if _, err := json.Marshal(v); err == nil {
			props[k] = v
		}
	}
	msg := s.broadcast(TypeOpened, Opened{Origin: fmt.Sprint(origin), Properties: props})
	if msg == nil {
		return
	}
	s.mu.Lock()
	s.opened = msg
	s.mu.Unlock()
	s.lastProgress.Store(0)
}

// Progress broadcasts the position at most once per progress interval
func (s *Server) Progress(encodedBytes int64, microseconds int64, pcm []byte, properties map[string]any) {
	now := time.Now().UnixNano()
	last := s.lastProgress.Load()
	if last != 0 && time.Duration(now-last) < s.config.ProgressInterval {
		return
	}
	if !s.lastProgress.CompareAndSwap(last, now) {
		return
	}
	s.broadcast(TypeProgress, Progress{EncodedBytes: encodedBytes, Microseconds: microseconds})
}

// StatusUpdated broadcasts a status event
func (s *Server) StatusUpdated(event streamplayer.Event) {
	st := Status{Status: event.Status.String(), Position: event.Position}
	if event.Description != nil {
		st.Description = fmt.Sprint(event.Description)
	}
	s.broadcast(TypeStatus, st)
}
