package systemair

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// HTTP transport constants.
const (
	// DefaultHost is the mDNS name of a SAVE CONNECT module.
	DefaultHost = "saveconnect.local"

	// DefaultTimeout bounds every request to the unit.
	DefaultTimeout = 5 * time.Second

	// maxBodySize caps how much of a response is read.
	maxBodySize = 1 << 20

	// writeAck is the body the unit returns after accepting a write.
	writeAck = "OK"
)

// HTTPOptions configures an HTTPTransport.
type HTTPOptions struct {
	// Host is a hostname, host:port, or full base URL. Default: DefaultHost
	Host string

	// Timeout bounds each request. Default: DefaultTimeout
	Timeout time.Duration

	// Client overrides the HTTP client. Its Timeout is left untouched.
	Client *http.Client

	Logger Logger
}

// HTTPTransport speaks the IAM module's HTTP API:
//
//	GET /                          probe
//	GET /mread?{"2000":1}          read, JSON object reply
//	GET /mwrite?{"2000":210}       write, "OK" reply on success
//
// Thread Safety: All methods are safe for concurrent use.
type HTTPTransport struct {
	baseURL string
	timeout time.Duration
	client  *http.Client
	logger  Logger

	// ctx is cancelled by Close so in-flight requests abort.
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// NewHTTPTransport creates a transport for the unit at opts.Host.
func NewHTTPTransport(opts HTTPOptions) *HTTPTransport {
	if opts.Host == "" {
		opts.Host = DefaultHost
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: opts.Timeout}
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}

	base := opts.Host
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &HTTPTransport{
		baseURL: strings.TrimRight(base, "/"),
		timeout: opts.Timeout,
		client:  opts.Client,
		logger:  opts.Logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// BaseURL returns the URL requests are sent to.
func (t *HTTPTransport) BaseURL() string { return t.baseURL }

// Probe issues GET / and reports whether the unit answered 200.
func (t *HTTPTransport) Probe(ctx context.Context) bool {
	u := t.baseURL + "/"
	resp, err := t.get(ctx, u)
	if err != nil {
		t.logger.Debug("probe failed", "url", u, "error", err)
		return false
	}
	defer drain(resp)
	return resp.StatusCode == http.StatusOK
}

// ReadRegisters requests ids from the unit.
func (t *HTTPTransport) ReadRegisters(ctx context.Context, ids []RegisterID) (RawValues, error) {
	payload := make(map[RegisterID]int, len(ids))
	for _, id := range ids {
		payload[id] = 1
	}

	u, err := t.buildURL("/mread", payload)
	if err != nil {
		return nil, &TransportError{Op: "read", URL: t.baseURL + "/mread", Err: err}
	}
	t.logger.Debug("reading from unit", "url", u)

	body, err := t.exchange(ctx, "read", u)
	if err != nil {
		return nil, err
	}

	var decoded map[RegisterID]json.Number
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, &TransportError{Op: "read", URL: u, Err: fmt.Errorf("decoding response: %w", err)}
	}
	if decoded == nil {
		return nil, &TransportError{Op: "read", URL: u, Err: errors.New("decoding response: not a JSON object")}
	}

	values := make(RawValues, len(decoded))
	for id, n := range decoded {
		v, err := n.Int64()
		if err != nil {
			return nil, &TransportError{Op: "read", URL: u, Err: fmt.Errorf("register %s: %w", id, err)}
		}
		values[id] = int(v)
	}
	return values, nil
}

// WriteRegisters sends values and reports whether the unit replied "OK".
func (t *HTTPTransport) WriteRegisters(ctx context.Context, values RawValues) (bool, error) {
	u, err := t.buildURL("/mwrite", values)
	if err != nil {
		return false, &TransportError{Op: "write", URL: t.baseURL + "/mwrite", Err: err}
	}
	t.logger.Debug("writing to unit", "url", u)

	body, err := t.exchange(ctx, "write", u)
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(string(body)) == writeAck, nil
}

// Close aborts in-flight requests and releases idle connections.
func (t *HTTPTransport) Close() error {
	t.closeOnce.Do(func() {
		t.cancel()
		t.client.CloseIdleConnections()
	})
	return nil
}

// buildURL encodes payload as compact JSON and appends it as the raw query.
func (t *HTTPTransport) buildURL(path string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encoding query: %w", err)
	}
	return t.baseURL + path + "?" + url.PathEscape(string(data)), nil
}

// exchange performs a GET and returns the body of a 2xx response.
func (t *HTTPTransport) exchange(ctx context.Context, op, u string) ([]byte, error) {
	resp, err := t.get(ctx, u)
	if err != nil {
		return nil, &TransportError{Op: op, URL: u, Err: err}
	}
	defer drain(resp)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &TransportError{Op: op, URL: u, StatusCode: resp.StatusCode, Err: errors.New(http.StatusText(resp.StatusCode))}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &TransportError{Op: op, URL: u, StatusCode: resp.StatusCode, Err: fmt.Errorf("reading body: %w", err)}
	}
	return body, nil
}

func (t *HTTPTransport) get(ctx context.Context, u string) (*http.Response, error) {
	if t.ctx.Err() != nil {
		return nil, ErrClosed
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	stop := context.AfterFunc(t.ctx, cancel)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		stop()
		cancel()
		return nil, err
	}

	resp, err := t.client.Do(req)
	if err != nil {
		stop()
		cancel()
		if t.ctx.Err() != nil {
			return nil, ErrClosed
		}
		return nil, err
	}

	// Release the request context once the caller is done with the body.
	resp.Body = &cancelBody{ReadCloser: resp.Body, release: func() {
		stop()
		cancel()
	}}
	return resp, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))
	_ = resp.Body.Close()
}

type cancelBody struct {
	io.ReadCloser
	release func()
	once    sync.Once
}

func (b *cancelBody) Close() error {
	err := b.ReadCloser.Close()
	b.once.Do(b.release)
	return err
}

var _ Transport = (*HTTPTransport)(nil)
