package discovery

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/grandcat/zeroconf"
)

type fakeResolver struct {
	entries []*zeroconf.ServiceEntry
	err     error
	service string
}

func (f *fakeResolver) Browse(ctx context.Context, service, _ string, entries chan<- *zeroconf.ServiceEntry) error {
	if f.err != nil {
		return f.err
	}
	f.service = service
	go func() {
		for _, e := range f.entries {
			select {
			case entries <- e:
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

func entry(instance string, port int, ip string, txt ...string) *zeroconf.ServiceEntry {
	e := zeroconf.NewServiceEntry(instance, Service, Domain)
	e.HostName = instance + ".local."
	e.Port = port
	e.Text = txt
	if ip != "" {
		e.AddrIPv4 = []net.IP{net.ParseIP(ip)}
	}
	return e
}

func TestBrowse(t *testing.T) {
	r := &fakeResolver{entries: []*zeroconf.ServiceEntry{
		entry("office", 8080, "192.168.1.20", "path=/ws", "version=v1.2.0"),
		entry("attic", 9000, ""),
		entry("office", 8080, "192.168.1.20", "path=/ws", "version=v1.2.0"),
	}}
	b, err := NewBrowser(WithResolver(r), WithTimeout(100*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}

	servers, err := b.Browse(context.Background())
	if err != nil {
		t.Fatalf("Browse() = %v", err)
	}
	if r.service != Service {
		t.Errorf("browsed %q", r.service)
	}
	if len(servers) != 2 {
		t.Fatalf("servers = %+v", servers)
	}

	if servers[0].Instance != "attic" || servers[0].URL() != "ws://attic.local:9000/ws" {
		t.Errorf("attic = %+v, url %s", servers[0], servers[0].URL())
	}
	office := servers[1]
	if office.Version != "v1.2.0" || office.URL() != "ws://192.168.1.20:8080/ws" {
		t.Errorf("office = %+v, url %s", office, office.URL())
	}
}

func TestFirst(t *testing.T) {
	b, _ := NewBrowser(WithResolver(&fakeResolver{}), WithTimeout(20*time.Millisecond))
	if _, err := b.First(context.Background()); !errors.Is(err, ErrNoServer) {
		t.Errorf("First() = %v, want ErrNoServer", err)
	}

	failing, _ := NewBrowser(WithResolver(&fakeResolver{err: errors.New("no multicast")}))
	if _, err := failing.First(context.Background()); err == nil {
		t.Error("First() ignored browse failure")
	}
}
