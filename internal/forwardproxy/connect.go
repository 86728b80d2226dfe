package forwardproxy

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/slopbox/controlplane/internal/store"
)

// handleConnect implements the CONNECT tunnel: dial the origin, reply
// "200 Connection Established", then relay bytes bidirectionally until
// either side closes (spec.md §4.1 "CONNECT host:port").
func (p *Proxy) handleConnect(ctx context.Context, client net.Conn, req *http.Request, chain identityChain) {
	origin, err := net.DialTimeout("tcp", req.Host, 10*time.Second)
	if err != nil {
		writeStatusLine(client, http.StatusBadGateway, "Bad Gateway")
		return
	}
	defer origin.Close()

	client.SetWriteDeadline(time.Now().Add(connWriteTimeout))
	if _, err := client.Write([]byte("HTTP/1.1 200 Connection Established\r\n\r\n")); err != nil {
		return
	}
	client.SetWriteDeadline(time.Time{})

	var counted countingRelay
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		n, _ := io.Copy(origin, client)
		counted.addUp(n)
	}()
	go func() {
		defer wg.Done()
		n, _ := io.Copy(client, origin)
		counted.addDown(n)
	}()
	wg.Wait()

	p.metrics.ForwardProxyBytesTotal.WithLabelValues("up").Add(float64(counted.up))
	p.metrics.ForwardProxyBytesTotal.WithLabelValues("down").Add(float64(counted.down))
	p.flushUsage(context.Background(), chain.VpsID, counted.total())
}

// countingRelay accumulates bytes seen in each direction of a
// bidirectional relay. Both directions count toward bandwidth (spec.md
// §4.1: "Both directions are counted; the sum is charged as bandwidth").
type countingRelay struct {
	mu   sync.Mutex
	up   int64
	down int64
}

func (c *countingRelay) addUp(n int64) {
	c.mu.Lock()
	c.up += n
	c.mu.Unlock()
}

func (c *countingRelay) addDown(n int64) {
	c.mu.Lock()
	c.down += n
	c.mu.Unlock()
}

func (c *countingRelay) total() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.up + c.down
}

// flushUsage performs the at-least-once upsert on connection completion
// (spec.md §4.1 "Byte counting"). It uses its own context so a caller
// cancellation (e.g. listener shutdown) does not drop an already-
// completed connection's usage.
func (p *Proxy) flushUsage(ctx context.Context, vpsID string, bytes int64) {
	if bytes <= 0 {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := p.store.AddUsage(ctx, vpsID, store.PeriodStart(time.Now()), store.UsageDelta{BandwidthBytes: bytes}); err != nil {
		// Not retried: at-least-once semantics accept a small lost-count
		// over inflating counts on repeated retry (spec.md §4.1 "Byte
		// counting").
		slog.Error("forwardproxy: usage flush failed", "vps_id", vpsID, "bytes", bytes, "error", err)
	}
}
