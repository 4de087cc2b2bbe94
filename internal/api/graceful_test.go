package api

import (
	"net"
	"net/http"
	"os"
	"os/signal"
	"testing"
	"time"

	"github.com/captioncast/captioncast/internal/config"
)

func TestHTTPServerAndShutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	srv := NewHTTPServer(ln.Addr().String(), http.NewServeMux(), config.ServerConfig{ReadTimeout: 5 * time.Second})
	go func(s *http.Server, l net.Listener) { _ = s.Serve(l) }(srv, ln)

	if err := GracefulShutdown(srv, time.Second); err != nil {
		t.Fatalf("unexpected shutdown error: %v", err)
	}
}

func TestHTTPServerTimeouts(t *testing.T) {
	srv := NewHTTPServer(":0", http.NewServeMux(), config.ServerConfig{ReadTimeout: 7 * time.Second})
	if srv.ReadTimeout != 7*time.Second {
		t.Fatalf("expected read timeout from config, got %v", srv.ReadTimeout)
	}
	if srv.WriteTimeout != 0 {
		t.Fatalf("expected no write timeout by default, got %v", srv.WriteTimeout)
	}

	srv = NewHTTPServer(":0", http.NewServeMux(), config.ServerConfig{WriteTimeout: time.Minute})
	if srv.WriteTimeout != time.Minute {
		t.Fatalf("expected configured write timeout, got %v", srv.WriteTimeout)
	}
}

func TestSignalHandling(t *testing.T) {
	ch := SetupSignalHandler()
	defer signal.Stop(ch)

	go func() {
		ch <- os.Interrupt
	}()

	sig := WaitForSignal(ch)
	if sig != os.Interrupt {
		t.Fatalf("unexpected signal: %v", sig)
	}
}
