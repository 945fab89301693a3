package systemair

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeUnit emulates the IAM module's HTTP API. Tests flip its fields to
// provoke failures.
type fakeUnit struct {
	mu         sync.Mutex
	registers  map[string]int
	writeReply string
	readBody   string // overrides the JSON reply when set
	status     int    // overrides the status when non-zero
	requests   []string
	writes     []map[string]int
}

func newFakeUnit() *fakeUnit {
	return &fakeUnit{registers: map[string]int{"2000": 215}, writeReply: "OK"}
}

func (f *fakeUnit) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	query, err := url.PathUnescape(r.URL.RawQuery)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.requests = append(f.requests, r.URL.Path+"?"+query)

	if f.status != 0 {
		w.WriteHeader(f.status)
		return
	}

	switch r.URL.Path {
	case "/":
		_, _ = w.Write([]byte("<html>SAVE CONNECT</html>"))
	case "/mread":
		if f.readBody != "" {
			_, _ = w.Write([]byte(f.readBody))
			return
		}
		var keys map[string]int
		if err := json.Unmarshal([]byte(query), &keys); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		out := make(map[string]int, len(keys))
		for k := range keys {
			if v, ok := f.registers[k]; ok {
				out[k] = v
			}
		}
		_ = json.NewEncoder(w).Encode(out)
	case "/mwrite":
		var vals map[string]int
		if err := json.Unmarshal([]byte(query), &vals); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.writes = append(f.writes, vals)
		if strings.TrimSpace(f.writeReply) == "OK" {
			for k, v := range vals {
				f.registers[k] = v
			}
		}
		_, _ = w.Write([]byte(f.writeReply))
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeUnit) lastRequest() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		return ""
	}
	return f.requests[len(f.requests)-1]
}

func newTestTransport(t *testing.T, unit *fakeUnit) *HTTPTransport {
	t.Helper()
	srv := httptest.NewServer(unit)
	t.Cleanup(srv.Close)
	tr := NewHTTPTransport(HTTPOptions{Host: srv.URL, Timeout: 2 * time.Second})
	t.Cleanup(func() { _ = tr.Close() })
	return tr
}

func TestNewHTTPTransport_Defaults(t *testing.T) {
	tr := NewHTTPTransport(HTTPOptions{})
	defer tr.Close()

	if tr.BaseURL() != "http://saveconnect.local" {
		t.Errorf("BaseURL() = %q, want http://saveconnect.local", tr.BaseURL())
	}
	if tr.timeout != DefaultTimeout {
		t.Errorf("timeout = %v, want %v", tr.timeout, DefaultTimeout)
	}
}

func TestHTTPTransport_Probe(t *testing.T) {
	unit := newFakeUnit()
	tr := newTestTransport(t, unit)

	if !tr.Probe(context.Background()) {
		t.Error("Probe() = false, want true")
	}

	unit.status = http.StatusServiceUnavailable
	if tr.Probe(context.Background()) {
		t.Error("Probe() = true on 503, want false")
	}
}

func TestHTTPTransport_ProbeUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	tr := NewHTTPTransport(HTTPOptions{Host: addr, Timeout: time.Second})
	defer tr.Close()

	if tr.Probe(context.Background()) {
		t.Error("Probe() = true for closed server, want false")
	}
}

func TestHTTPTransport_ProbeTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	tr := NewHTTPTransport(HTTPOptions{Host: srv.URL, Timeout: 50 * time.Millisecond})
	defer tr.Close()

	start := time.Now()
	if tr.Probe(context.Background()) {
		t.Error("Probe() = true for hung server, want false")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Probe() took %v, timeout not applied", elapsed)
	}
}

func TestHTTPTransport_ReadRegisters(t *testing.T) {
	unit := newFakeUnit()
	tr := newTestTransport(t, unit)

	got, err := tr.ReadRegisters(context.Background(), []RegisterID{"2000"})
	if err != nil {
		t.Fatalf("ReadRegisters() error = %v", err)
	}
	if got["2000"] != 215 {
		t.Errorf("ReadRegisters() = %v, want 2000:215", got)
	}
	if req := unit.lastRequest(); req != `/mread?{"2000":1}` {
		t.Errorf("request = %q, want /mread?{\"2000\":1}", req)
	}
}

func TestHTTPTransport_ReadErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, ""},
		{"not found", http.StatusNotFound, ""},
		{"malformed json", 0, "{not json"},
		{"json array", 0, "[1,2]"},
		{"json null", 0, "null"},
		{"fractional value", 0, `{"2000":21.5}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unit := newFakeUnit()
			unit.status = tt.status
			unit.readBody = tt.body
			tr := newTestTransport(t, unit)

			_, err := tr.ReadRegisters(context.Background(), []RegisterID{"2000"})
			if !errors.Is(err, ErrTransport) {
				t.Fatalf("ReadRegisters() error = %v, want ErrTransport", err)
			}
			var te *TransportError
			if !errors.As(err, &te) || te.Op != "read" {
				t.Errorf("error = %#v, want *TransportError with Op read", err)
			}
			if tt.status != 0 && te.StatusCode != tt.status {
				t.Errorf("StatusCode = %d, want %d", te.StatusCode, tt.status)
			}
		})
	}
}

func TestHTTPTransport_WriteRegisters(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  bool
	}{
		{"ok", "OK", true},
		{"ok with whitespace", "  OK\r\n", true},
		{"lowercase", "ok", false},
		{"error text", "ERR", false},
		{"empty", "", false},
		{"ok prefix", "OK!", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unit := newFakeUnit()
			unit.writeReply = tt.reply
			tr := newTestTransport(t, unit)

			ok, err := tr.WriteRegisters(context.Background(), RawValues{"2000": 210})
			if err != nil {
				t.Fatalf("WriteRegisters() error = %v", err)
			}
			if ok != tt.want {
				t.Errorf("WriteRegisters() = %v, want %v", ok, tt.want)
			}
			if req := unit.lastRequest(); req != `/mwrite?{"2000":210}` {
				t.Errorf("request = %q, want /mwrite?{\"2000\":210}", req)
			}
		})
	}
}

func TestHTTPTransport_WriteHTTPError(t *testing.T) {
	unit := newFakeUnit()
	unit.status = http.StatusBadGateway
	tr := newTestTransport(t, unit)

	ok, err := tr.WriteRegisters(context.Background(), RawValues{"2000": 210})
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("WriteRegisters() error = %v, want ErrTransport", err)
	}
	if ok {
		t.Error("WriteRegisters() = true on error")
	}
}

func TestHTTPTransport_CloseIdempotent(t *testing.T) {
	tr := NewHTTPTransport(HTTPOptions{Host: "127.0.0.1:1"})

	for i := 0; i < 3; i++ {
		if err := tr.Close(); err != nil {
			t.Fatalf("Close() #%d error = %v", i, err)
		}
	}
}

func TestHTTPTransport_UseAfterClose(t *testing.T) {
	unit := newFakeUnit()
	tr := newTestTransport(t, unit)
	_ = tr.Close()

	if tr.Probe(context.Background()) {
		t.Error("Probe() = true after Close")
	}
	_, err := tr.ReadRegisters(context.Background(), []RegisterID{"2000"})
	if !errors.Is(err, ErrClosed) || !errors.Is(err, ErrTransport) {
		t.Errorf("ReadRegisters() error = %v, want ErrClosed and ErrTransport", err)
	}
}

func TestHTTPTransport_CloseAbortsInFlight(t *testing.T) {
	started := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-r.Context().Done()
	}))
	defer srv.Close()

	tr := NewHTTPTransport(HTTPOptions{Host: srv.URL, Timeout: 10 * time.Second})

	errCh := make(chan error, 1)
	go func() {
		_, err := tr.ReadRegisters(context.Background(), []RegisterID{"2000"})
		errCh <- err
	}()

	<-started
	_ = tr.Close()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrClosed) {
			t.Errorf("in-flight read error = %v, want ErrClosed", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Close did not abort in-flight request")
	}
}
