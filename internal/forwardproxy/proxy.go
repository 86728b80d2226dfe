// Package forwardproxy implements the outbound HTTP/CONNECT proxy every
// VPS is configured to use as its HTTP_PROXY/HTTPS_PROXY (spec.md §4.1).
// It authenticates each connection as a specific agent, meters bytes in
// both directions, and — for providers whose metering policy includes
// cpu/memory — enforces plan caps and overage budget on a per-request
// basis before opening the upstream connection.
package forwardproxy

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/slopbox/controlplane/internal/cache"
	"github.com/slopbox/controlplane/internal/metrics"
	"github.com/slopbox/controlplane/internal/provider"
	"github.com/slopbox/controlplane/internal/store"
)

// Proxy is the forward proxy listener. Each accepted connection is
// handled in its own goroutine; shared resources (store, cache,
// registry) are read-mostly (spec.md §5).
type Proxy struct {
	listenAddr string
	store      *store.Store
	cache      *cache.Cache
	registry   *provider.Registry
	metrics    *metrics.Metrics

	httpClient *http.Client
}

func New(listenAddr string, st *store.Store, c *cache.Cache, reg *provider.Registry, m *metrics.Metrics) *Proxy {
	return &Proxy{
		listenAddr: listenAddr,
		store:      st,
		cache:      c,
		registry:   reg,
		metrics:    m,
		httpClient: &http.Client{
			// No read timeout: long-lived tunnels are legitimate
			// (spec.md §5 "read timeouts are not imposed on the forward
			// proxy CONNECT tunnel").
			Timeout: 0,
		},
	}
}

// ListenAndServe blocks accepting connections until ctx is cancelled.
func (p *Proxy) ListenAndServe(ctx context.Context) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", p.listenAddr)
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	slog.Info("forwardproxy: listening", "addr", p.listenAddr)

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				slog.Error("forwardproxy: accept failed", "error", err)
				continue
			}
		}
		go p.handleConnection(ctx, conn)
	}
}

// handleConnection dispatches on the request line: CONNECT establishes a
// raw tunnel, any other verb is treated as an absolute-form HTTP request
// (spec.md §4.1 "Listener contract").
func (p *Proxy) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	br := bufio.NewReader(conn)
	req, err := http.ReadRequest(br)
	if err != nil {
		p.metrics.ForwardProxyConnectionsTotal.WithLabelValues("malformed").Inc()
		writeStatusLine(conn, http.StatusBadRequest, "Bad Request")
		return
	}

	agent, authErr := p.authenticate(ctx, req)
	if authErr != nil {
		p.metrics.ForwardProxyConnectionsTotal.WithLabelValues("auth_failed").Inc()
		writeProxyAuthRequired(conn)
		return
	}

	chain, err := p.resolveChain(ctx, agent)
	if err != nil {
		p.metrics.ForwardProxyConnectionsTotal.WithLabelValues("resolve_failed").Inc()
		writeStatusLine(conn, http.StatusBadGateway, "Bad Gateway")
		return
	}

	decision := p.enforce(ctx, chain)
	p.metrics.ForwardProxyEnforcementTotal.WithLabelValues(string(decision)).Inc()
	if decision == decisionReject {
		writeStatusLine(conn, http.StatusForbidden, "Forbidden")
		return
	}

	if req.Method == http.MethodConnect {
		p.metrics.ForwardProxyConnectionsTotal.WithLabelValues("connect").Inc()
		p.handleConnect(ctx, conn, req, chain)
		return
	}

	p.metrics.ForwardProxyConnectionsTotal.WithLabelValues("http").Inc()
	p.handleAbsoluteHTTP(ctx, conn, req, chain)
}

func writeStatusLine(conn net.Conn, code int, text string) {
	conn.Write([]byte(fmt.Sprintf("HTTP/1.1 %d %s\r\n\r\n", code, text)))
}

func writeProxyAuthRequired(conn net.Conn) {
	conn.Write([]byte("HTTP/1.1 407 Proxy Authentication Required\r\nProxy-Authenticate: Basic realm=\"forward-proxy\"\r\n\r\n"))
}

// connWriteTimeout bounds how long writing the CONNECT response line may
// block before the handler gives up on a misbehaving client.
const connWriteTimeout = 10 * time.Second
