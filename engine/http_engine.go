package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	tls "github.com/refraction-networking/utls"
	"github.com/use-agent/mediagrab/models"
)

// DefaultUserAgent is sent on every request unless overridden.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36"

const (
	defaultMaxBody = 10 << 20
	pageAccept     = "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8"
)

// HTTPEngine fetches pages and media over net/http with a Chrome-like TLS
// fingerprint and browser headers.
type HTTPEngine struct {
	client    *http.Client
	userAgent string
}

// HTTPOptions configures NewHTTPEngine.
type HTTPOptions struct {
	UserAgent string
	// Proxy is an optional "http://", "https://" or "socks5://" proxy URL.
	Proxy       string
	DialTimeout time.Duration
}

// chromeH1Spec is a Chrome-like TLS ClientHello with ALPN forced to http/1.1
// only. Computed once at init time and reused for every connection.
var chromeH1Spec tls.ClientHelloSpec

func init() {
	spec, err := tls.UTLSIdToSpec(tls.HelloChrome_Auto)
	if err != nil {
		return
	}
	// Go's http.Transport cannot speak h2 over a utls connection.
	for i, ext := range spec.Extensions {
		if alpn, ok := ext.(*tls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
			spec.Extensions[i] = alpn
			break
		}
	}
	chromeH1Spec = spec
}

// NewHTTPEngine creates an HTTPEngine with a Chrome-like TLS fingerprint.
func NewHTTPEngine(opts HTTPOptions) (*HTTPEngine, error) {
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 10 * time.Second
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{Timeout: opts.DialTimeout}).DialContext,
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			dialer := &net.Dialer{Timeout: opts.DialTimeout}
			conn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			host, _, _ := net.SplitHostPort(addr)
			tlsConn := tls.UClient(conn, &tls.Config{ServerName: host}, tls.HelloCustom)
			if err := tlsConn.ApplyPreset(&chromeH1Spec); err != nil {
				conn.Close()
				return nil, fmt.Errorf("http_engine: apply tls spec: %w", err)
			}
			if err := tlsConn.HandshakeContext(ctx); err != nil {
				conn.Close()
				return nil, err
			}
			return tlsConn, nil
		},
		ForceAttemptHTTP2:   false,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
	}

	if opts.Proxy != "" {
		proxyURL, err := url.Parse(opts.Proxy)
		if err != nil {
			return nil, fmt.Errorf("http_engine: parse proxy: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	return newHTTPEngine(&http.Client{Transport: transport}, opts.UserAgent), nil
}

func newHTTPEngine(client *http.Client, userAgent string) *HTTPEngine {
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= 10 {
			return fmt.Errorf("too many redirects")
		}
		return nil
	}
	return &HTTPEngine{client: client, userAgent: userAgent}
}

func (e *HTTPEngine) Name() string { return "http" }

// UserAgent returns the User-Agent sent with every request.
func (e *HTTPEngine) UserAgent() string { return e.userAgent }

func (e *HTTPEngine) Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	resp, err := e.do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	maxBody := req.MaxBody
	if maxBody <= 0 {
		maxBody = defaultMaxBody
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody+1))
	if err != nil {
		return nil, transportError(err, req.Target)
	}
	truncated := int64(len(body)) > maxBody
	if truncated {
		body = body[:maxBody]
	}

	return &FetchResult{
		Body:        body,
		StatusCode:  resp.StatusCode,
		FinalURL:    resp.Request.URL.String(),
		ContentType: resp.Header.Get("Content-Type"),
		Truncated:   truncated,
		EngineName:  e.Name(),
	}, nil
}

func (e *HTTPEngine) Open(ctx context.Context, req *FetchRequest) (*Stream, error) {
	cancel := context.CancelFunc(func() {})
	if req.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
	}

	resp, err := e.do(ctx, req)
	if err != nil {
		cancel()
		return nil, err
	}

	return &Stream{
		Body:          &cancelOnClose{ReadCloser: resp.Body, cancel: cancel, target: req.Target},
		StatusCode:    resp.StatusCode,
		FinalURL:      resp.Request.URL.String(),
		ContentType:   resp.Header.Get("Content-Type"),
		ContentLength: resp.ContentLength,
	}, nil
}

// do sends the request and maps transport failures and non-2xx statuses
// to ScrapeErrors. On success the caller owns resp.Body.
func (e *HTTPEngine) do(ctx context.Context, req *FetchRequest) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, &models.ScrapeError{
			Code:    models.ErrCodeInvalidURL,
			Message: models.UserMessage(models.ErrCodeInvalidURL, req.Target),
			Err:     fmt.Errorf("http_engine: build request: %w", err),
		}
	}

	accept := req.Accept
	if accept == "" {
		accept = pageAccept
	}
	httpReq.Header.Set("User-Agent", e.userAgent)
	httpReq.Header.Set("Accept", accept)
	httpReq.Header.Set("Accept-Language", "en-US,en;q=0.9")
	httpReq.Header.Set("Accept-Encoding", "identity")
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, transportError(err, req.Target)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		resp.Body.Close()
		return nil, models.NewUpstreamError(resp.StatusCode, req.Target)
	}
	return resp, nil
}

// transportError covers connect, DNS, TLS and deadline failures, all of
// which surface to users as a timeout.
func transportError(err error, target models.Target) error {
	var se *models.ScrapeError
	if errors.As(err, &se) {
		return se
	}
	return &models.ScrapeError{
		Code:    models.ErrCodeTimeout,
		Message: models.UserMessage(models.ErrCodeTimeout, target),
		Err:     fmt.Errorf("http_engine: %w", err),
	}
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
	target models.Target
}

func (c *cancelOnClose) Read(p []byte) (int, error) {
	n, err := c.ReadCloser.Read(p)
	if err != nil && err != io.EOF {
		return n, transportError(err, c.target)
	}
	return n, err
}

func (c *cancelOnClose) Close() error {
	defer c.cancel()
	return c.ReadCloser.Close()
}
