package overlay

import (
	"context"
	"crypto/tls"
	"errors"
	"net"

	"github.com/sirupsen/logrus"

	"github.com/overlaymesh/ronet/internal/oap"
	"github.com/overlaymesh/ronet/internal/obs"
	"github.com/overlaymesh/ronet/internal/rerr"
)

// Handler processes one decoded frame from a connection. Returning an
// error tears the connection down.
type Handler func(ctx context.Context, peerTag string, out *Writer, frame oap.Frame) error

// Config controls the accept loop and per-connection behavior.
type Config struct {
	ListenAddr   string
	TLS          *tls.Config // nil runs the listener in plaintext (tests, local dev)
	WriterDepth  int         // bounded channel size per connection, see Writer
	AllowZstd    bool
}

// Listener runs a TLS (or plaintext) accept loop, spawning one Writer
// and one reader goroutine per connection. Grounded on the
// spawn_transport(cfg, ..., Option<TlsServerConfig>) shape exercised by
// ron-transport's TLS accept integration test.
type Listener struct {
	cfg     Config
	metrics *obs.Metrics
	logger  *logrus.Logger
	ln      net.Listener
}

// Listen binds the configured address, wrapping it in TLS if cfg.TLS is
// set, and returns a Listener ready to Serve.
func Listen(cfg Config, m *obs.Metrics, logger *logrus.Logger) (*Listener, error) {
	raw, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return nil, rerr.New(rerr.KindIO, "Listen", "overlay listen failed", err)
	}
	ln := raw
	if cfg.TLS != nil {
		ln = tls.NewListener(raw, cfg.TLS)
	}
	return &Listener{cfg: cfg, metrics: m, logger: logger, ln: ln}, nil
}

// Addr returns the bound address.
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// Close stops accepting new connections. In-flight connections are left
// to wind down on their own.
func (l *Listener) Close() error { return l.ln.Close() }

// Serve accepts connections until ctx is cancelled or the listener is
// closed, dispatching each to handle. It returns nil on a clean shutdown
// (ctx cancellation or Close) and a non-nil error on any other accept
// failure.
func (l *Listener) Serve(ctx context.Context, handle Handler) error {
	go func() {
		<-ctx.Done()
		_ = l.ln.Close()
	}()

	for {
		conn, err := l.ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return rerr.New(rerr.KindIO, "Accept", "overlay accept failed", err)
		}
		go l.serveConn(ctx, conn, handle)
	}
}

func (l *Listener) serveConn(ctx context.Context, conn net.Conn, handle Handler) {
	peerTag := conn.RemoteAddr().String()
	w := NewWriter(conn, l.cfg.WriterDepth, peerTag, l.metrics)
	defer func() {
		w.Close()
		w.Wait()
		_ = conn.Close()
	}()

	dec := oap.NewDecoder(l.cfg.AllowZstd)
	buf := make([]byte, 32*1024)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			dec.Feed(buf[:n])
			for {
				frame, ok, ferr := dec.Next()
				if ferr != nil {
					if l.logger != nil {
						l.logger.WithError(ferr).WithField("peer", peerTag).Warn("overlay: protocol error, closing connection")
					}
					return
				}
				if !ok {
					break
				}
				if herr := handle(ctx, peerTag, w, frame); herr != nil {
					if l.logger != nil {
						l.logger.WithError(herr).WithField("peer", peerTag).Warn("overlay: handler error, closing connection")
					}
					return
				}
			}
		}
		if err != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}
