package main

import (
	"context"
	"net"
	"net/http"

	"github.com/overlaymesh/ronet/internal/overlay"
	"github.com/overlaymesh/ronet/internal/rerr"
)

// bindError is returned by Run when a listener fails to bind, so main can
// map it to the bind-failure exit code independent of any other error.
type bindError struct{ err error }

func (b *bindError) Error() string { return b.err.Error() }
func (b *bindError) Unwrap() error { return b.err }

// Run binds every listener and spawns every long-running component under
// the supervisor, blocking until ctx is cancelled or a listener fails to
// bind.
func (n *Node) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	n.cancel = cancel
	defer cancel()

	cfg := *n.cfg.Load()

	// Probe every bind address up front so a bad address is reported as
	// a bind failure before any service is spawned, rather than surfacing
	// later as a crash-loop. Each listener is then closed immediately;
	// the owning service re-binds its own address on every run so a
	// crash-triggered restart gets a fresh socket.
	for _, addr := range []string{cfg.OverlayBindAddr, cfg.RegistryBindAddr, cfg.BindAddr} {
		probe, err := net.Listen("tcp", addr)
		if err != nil {
			return &bindError{err}
		}
		_ = probe.Close()
	}
	n.gates.SetListenersBound(true)

	dispatcher := &protocolDispatcher{
		blobs:   n.blobs,
		dht:     n.dhtIdx,
		logger:  n.logger,
		version: nodeVersion,
	}

	overlaySvc := newCrashableService("overlay", func(ctx context.Context, crashed <-chan struct{}) error {
		ln, err := overlay.Listen(overlay.Config{ListenAddr: cfg.OverlayBindAddr, WriterDepth: 64}, n.metrics, n.logger)
		if err != nil {
			return err
		}
		errCh := make(chan error, 1)
		go func() { errCh <- ln.Serve(ctx, dispatcher.handle) }()
		select {
		case <-crashed:
			_ = ln.Close()
			<-errCh
			return rerr.New(rerr.KindIO, "OverlayCrash", "overlay service crashed on admin request", nil)
		case err := <-errCh:
			return err
		}
	})

	registrySvc := newCrashableService("registry", httpServiceRunner(cfg.RegistryBindAddr, func() http.Handler { return n.registryRouter }))
	gatewaySvc := newCrashableService("gateway", httpServiceRunner(cfg.BindAddr, func() http.Handler { return n.gatewayHandler }))

	n.services["overlay"] = overlaySvc
	n.services["registry"] = registrySvc
	n.services["gateway"] = gatewaySvc

	n.sup.Spawn(ctx, overlaySvc)
	n.sup.Spawn(ctx, registrySvc)
	n.sup.Spawn(ctx, gatewaySvc)

	<-ctx.Done()
	n.sup.Wait()
	return nil
}

// httpServiceRunner binds addr fresh on every invocation so a
// crash-triggered restart gets its own socket rather than reusing one an
// earlier crash already closed.
func httpServiceRunner(addr string, handler func() http.Handler) func(ctx context.Context, crashed <-chan struct{}) error {
	return func(ctx context.Context, crashed <-chan struct{}) error {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return err
		}
		srv := &http.Server{Handler: handler()}
		errCh := make(chan error, 1)
		go func() { errCh <- srv.Serve(ln) }()
		select {
		case <-crashed:
			_ = srv.Close()
			<-errCh
			return rerr.New(rerr.KindIO, "HTTPCrash", "http service crashed on admin request", nil)
		case <-ctx.Done():
			_ = srv.Shutdown(context.Background())
			<-errCh
			return nil
		case err := <-errCh:
			if err == http.ErrServerClosed {
				return nil
			}
			return err
		}
	}
}
