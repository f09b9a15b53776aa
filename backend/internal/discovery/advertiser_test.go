package discovery

import (
	"context"
	"errors"
	"net"
	"reflect"
	"testing"
	"time"
)

type fakeServer struct{ shutdown chan struct{} }

func (s *fakeServer) Shutdown() { close(s.shutdown) }

func TestAdvertiserRun(t *testing.T) {
	srv := &fakeServer{shutdown: make(chan struct{})}
	var gotService string
	var gotPort int
	var gotTXT []string

	a := NewAdvertiser("office", 8080, "v1.2.3")
	a.register = func(instance, service, domain string, port int, txt []string, _ []net.Interface) (MDNSServer, error) {
		gotService, gotPort, gotTXT = service, port, txt
		return srv, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}

	select {
	case <-srv.shutdown:
	default:
		t.Error("mdns server not shut down")
	}
	if gotService != Service || gotPort != 8080 {
		t.Errorf("registered %s:%d", gotService, gotPort)
	}
	if want := []string{"path=/ws", "version=v1.2.3"}; !reflect.DeepEqual(gotTXT, want) {
		t.Errorf("txt = %v, want %v", gotTXT, want)
	}
}

func TestAdvertiserErrors(t *testing.T) {
	tests := []struct {
		name string
		port int
		err  error
	}{
		{name: "bad port", port: 0},
		{name: "register fails", port: 8080, err: errors.New("no multicast interface")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAdvertiser("office", tt.port, "dev")
			a.register = func(string, string, string, int, []string, []net.Interface) (MDNSServer, error) {
				return nil, tt.err
			}
			if err := a.Run(context.Background()); err == nil {
				t.Fatal("Run() succeeded")
			}
		})
	}
}
