// ABOUTME: WebSocket event feed client
// ABOUTME: Performs the hello handshake, sends commands and delivers server messages
package eventfeed

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ErrServer wraps a server/error received during the handshake
var ErrServer = errors.New("server rejected connection")

// DialConfig holds client configuration
type DialConfig struct {
	// Addr is host:port of the event feed
	Addr string

	// ClientID identifies the client; empty generates a random one
	ClientID string

	Name   string
	Logger *zap.Logger
}

// Client is a connected event feed client
type Client struct {
	id     string
	conn   *websocket.Conn
	hello  ServerHello
	log    *zap.Logger
	events chan Message

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

// Dial connects to an event feed and completes the handshake
func Dial(ctx context.Context, config DialConfig) (*Client, error) {
	if config.ClientID == "" {
		config.ClientID = uuid.New().String()
	}
	if config.Name == "" {
		config.Name = "streamplayer-remote"
	}
	if config.Logger == nil {
		config.Logger = zap.L()
	}
	log := config.Logger.Named("eventfeed")

	u := url.URL{Scheme: "ws", Host: config.Addr, Path: Path}
	log.Debug("Connecting", zap.String("url", u.String()))

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial failed: %w", err)
	}

	c := &Client{
		id:     config.ClientID,
		conn:   conn,
		log:    log,
		events: make(chan Message, sendBuffer),
		done:   make(chan struct{}),
	}
	if err := c.handshake(config); err != nil {
		conn.Close()
		return nil, fmt.Errorf("handshake failed: %w", err)
	}

	go c.readMessages()
	return c, nil
}

func (c *Client) handshake(config DialConfig) error {
	if err := c.send(TypeClientHello, ClientHello{
		ClientID: config.ClientID,
		Name:     config.Name,
		Version:  ProtocolVersion,
	}); err != nil {
		return fmt.Errorf("failed to send %s: %w", TypeClientHello, err)
	}

	c.conn.SetReadDeadline(time.Now().Add(helloTimeout))
	var msg Message
	if err := c.conn.ReadJSON(&msg); err != nil {
		return fmt.Errorf("failed to read %s: %w", TypeServerHello, err)
	}
	c.conn.SetReadDeadline(time.Time{})

	switch msg.Type {
	case TypeServerHello:
		return msg.Decode(&c.hello)
	case TypeServerError:
		var se ServerError
		if err := msg.Decode(&se); err != nil {
			return err
		}
		return fmt.Errorf("%w: %s: %s", ErrServer, se.Error, se.Message)
	default:
		return fmt.Errorf("expected %s, got %s", TypeServerHello, msg.Type)
	}
}

func (c *Client) readMessages() {
	defer close(c.events)
	defer c.Close()

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			select {
			case <-c.done:
			default:
				c.log.Debug("Read ended", zap.Error(err))
			}
			return
		}
		select {
		case c.events <- msg:
		case <-c.done:
			return
		}
	}
}

func (c *Client) send(msgType string, payload any) error {
	msg, err := NewMessage(msgType, payload)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	return c.conn.WriteJSON(msg)
}

// ID returns the client ID sent in the handshake
func (c *Client) ID() string {
	return c.id
}

// Hello returns the server's handshake response
func (c *Client) Hello() ServerHello {
	return c.hello
}

// Events delivers server messages in arrival order. It is closed when the
// connection ends.
func (c *Client) Events() <-chan Message {
	return c.events
}

// Send issues a command. The answer arrives on Events as a player/result.
func (c *Client) Send(cmd Command) error {
	return c.send(TypeCommand, cmd)
}

// Close closes the connection
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}
