package forwardproxy

import (
	"context"
	"io"
	"net"
	"net/http"
)

// countingReader wraps an io.Reader, tallying bytes read.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// handleAbsoluteHTTP forwards `VERB http://origin/path HTTP/1.1` to the
// origin, stripping Proxy-Authorization, and streams the response back
// (spec.md §4.1 "Absolute-form HTTP request"). Request and response
// body bytes are counted; header bytes are not (spec.md §9, preserved
// documented undercounting behavior).
func (p *Proxy) handleAbsoluteHTTP(ctx context.Context, client net.Conn, req *http.Request, chain identityChain) {
	req.Header.Del("Proxy-Authorization")
	req.RequestURI = ""

	reqBody := &countingReader{r: req.Body}
	req.Body = io.NopCloser(reqBody)

	outReq := req.WithContext(ctx)
	resp, err := p.httpClient.Do(outReq)
	if err != nil {
		writeStatusLine(client, http.StatusBadGateway, "Bad Gateway")
		p.metrics.ForwardProxyBytesTotal.WithLabelValues("up").Add(float64(reqBody.n))
		p.flushUsage(context.Background(), chain.VpsID, reqBody.n)
		return
	}
	defer resp.Body.Close()

	respBody := &countingReader{r: resp.Body}
	resp.Body = io.NopCloser(respBody)

	// resp.Write streams status line, headers, and body to client in
	// one pass — no wholesale buffering (spec.md §5 "suspension
	// points", avoid CPU-bound work off the I/O path).
	resp.Write(client)

	p.metrics.ForwardProxyBytesTotal.WithLabelValues("up").Add(float64(reqBody.n))
	p.metrics.ForwardProxyBytesTotal.WithLabelValues("down").Add(float64(respBody.n))
	p.flushUsage(context.Background(), chain.VpsID, reqBody.n+respBody.n)
}
