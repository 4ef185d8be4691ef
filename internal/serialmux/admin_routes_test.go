package serialmux

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

// localHostRequest creates an httptest request that appears to come from localhost.
// This bypasses tsweb.AllowDebugAccess which checks for loopback IPs.
func localHostRequest(method, path string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, path, body)
	req.RemoteAddr = "127.0.0.1:12345"
	return req
}

func shortReplyTimeout(t *testing.T) {
	t.Helper()
	old := adminReplyTimeout
	adminReplyTimeout = 20 * time.Millisecond
	t.Cleanup(func() { adminReplyTimeout = old })
}

func TestAttachAdminRoutes_SendCommandAPI(t *testing.T) {
	shortReplyTimeout(t)
	tests := []struct {
		name       string
		method     string
		command    string
		writeErr   error
		wantStatus int
		wantBody   string
	}{
		{"valid", http.MethodPost, "G0 X10", nil, http.StatusOK, `"G0 X10"; no reply within 20ms`},
		{"empty", http.MethodPost, "  ", nil, http.StatusBadRequest, "Missing command"},
		{"wrong method", http.MethodGet, "G90", nil, http.StatusMethodNotAllowed, "Method not allowed"},
		{"write failure", http.MethodPost, "G90", errors.New("unplugged"), http.StatusInternalServerError, "Failed to write"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			port := NewTestableSerialPort()
			port.WriteError = tt.writeErr
			mux := NewSerialMux(port)
			httpMux := http.NewServeMux()
			mux.AttachAdminRoutes(httpMux)

			form := url.Values{"command": {tt.command}}
			req := localHostRequest(tt.method, "/debug/send-command-api", strings.NewReader(form.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			rec := httptest.NewRecorder()
			httpMux.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Errorf("body = %q, want it to contain %q", rec.Body.String(), tt.wantBody)
			}
			if tt.wantStatus == http.StatusOK {
				if got := string(port.GetWrittenData()); got != tt.command+"\n" {
					t.Errorf("written = %q", got)
				}
			}
		})
	}
}

func TestAttachAdminRoutes_SendCommandReply(t *testing.T) {
	mux := NewSerialMux(NewControllerPort())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mux.Monitor(ctx)

	httpMux := http.NewServeMux()
	mux.AttachAdminRoutes(httpMux)

	form := url.Values{"command": {"M114.2"}}
	req := localHostRequest(http.MethodPost, "/debug/send-command-api", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	httpMux.ServeHTTP(rec, req)

	want := `Wrote command "M114.2"; reply: ok MCS: X:0.0000 Y:0.0000 Z:0.0000`
	if rec.Body.String() != want {
		t.Errorf("body = %q, want %q", rec.Body.String(), want)
	}

	rec = httptest.NewRecorder()
	httpMux.ServeHTTP(rec, localHostRequest(http.MethodGet, "/debug/serial-history", nil))
	if !strings.Contains(rec.Body.String(), "> M114.2\n") {
		t.Errorf("history = %q", rec.Body.String())
	}
}

func TestAttachAdminRoutes_Console(t *testing.T) {
	httpMux := http.NewServeMux()
	NewDisabledSerialMux().AttachAdminRoutes(httpMux)

	rec := httptest.NewRecorder()
	httpMux.ServeHTTP(rec, localHostRequest(http.MethodGet, "/debug/send-command", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Motor controller console") {
		t.Error("console page not rendered")
	}

	rec = httptest.NewRecorder()
	httpMux.ServeHTTP(rec, localHostRequest(http.MethodGet, "/debug/tail.js", nil))
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "application/javascript" {
		t.Errorf("tail.js status = %d, content type %q", rec.Code, rec.Header().Get("Content-Type"))
	}
	if !strings.Contains(rec.Body.String(), "EventSource") {
		t.Error("tail.js body unexpected")
	}
}

func TestAttachAdminRoutes_Tail(t *testing.T) {
	d := NewDisabledSerialMux()
	httpMux := http.NewServeMux()
	d.AttachAdminRoutes(httpMux)

	rec := httptest.NewRecorder()
	httpMux.ServeHTTP(rec, localHostRequest(http.MethodPost, "/debug/tail", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST tail status = %d", rec.Code)
	}

	ctx, cancel := context.WithCancel(context.Background())
	req := localHostRequest(http.MethodGet, "/debug/tail", nil).WithContext(ctx)
	rec = httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		httpMux.ServeHTTP(rec, req)
		close(done)
	}()

	// Wait for the handler to subscribe, then produce a reply for it.
	deadline := time.Now().Add(2 * time.Second)
	for {
		if d.Subscribers() > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("tail handler never subscribed")
		}
		time.Sleep(time.Millisecond)
	}
	d.SendCommand("G90")
	time.Sleep(20 * time.Millisecond)
	cancel()
	<-done

	if got := rec.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Errorf("Content-Type = %q", got)
	}
	if !strings.Contains(rec.Body.String(), "event: ok\ndata: ok\n\n") {
		t.Errorf("body = %q, want an ok event", rec.Body.String())
	}
}
