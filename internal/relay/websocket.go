package relay

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/net/websocket"
)

var (
	ErrURLRequired = errors.New("relay: url required")
	ErrNoCACerts   = errors.New("relay: no certificates in ca file")
)

const DefaultOrigin = "http://localhost/"

// WebsocketDialer opens text-message websocket connections to the relay.
type WebsocketDialer struct {
	URL          string
	Origin       string
	DialTimeout  time.Duration
	WriteTimeout time.Duration
	// TLSConfig is used for wss:// URLs; nil means system roots.
	TLSConfig *tls.Config
}

func (d WebsocketDialer) Dial(ctx context.Context) (Conn, error) {
	url := strings.TrimSpace(d.URL)
	if url == "" {
		return nil, ErrURLRequired
	}
	origin := strings.TrimSpace(d.Origin)
	if origin == "" {
		origin = DefaultOrigin
	}
	cfg, err := websocket.NewConfig(url, origin)
	if err != nil {
		return nil, err
	}
	cfg.TlsConfig = d.TLSConfig
	if d.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.DialTimeout)
		defer cancel()
	}
	ws, err := cfg.DialContext(ctx)
	if err != nil {
		return nil, err
	}
	return &websocketConn{ws: ws, writeTimeout: d.WriteTimeout}, nil
}

type websocketConn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration
}

func (c *websocketConn) Send(ctx context.Context, msg []byte) error {
	if err := c.setWriteDeadline(ctx); err != nil {
		return err
	}
	return websocket.Message.Send(c.ws, string(msg))
}

func (c *websocketConn) Close() error {
	return c.ws.Close()
}

func (c *websocketConn) setWriteDeadline(ctx context.Context) error {
	var deadline time.Time
	if c.writeTimeout > 0 {
		deadline = time.Now().Add(c.writeTimeout)
	}
	if ctxDeadline, ok := ctx.Deadline(); ok && (deadline.IsZero() || ctxDeadline.Before(deadline)) {
		deadline = ctxDeadline
	}
	return c.ws.SetWriteDeadline(deadline)
}

// LoadCAFile builds a client TLS config trusting only the PEM certificates in
// path.
func LoadCAFile(path string) (*tls.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("relay ca file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(data) {
		return nil, fmt.Errorf("%w: %s", ErrNoCACerts, path)
	}
	return &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}
