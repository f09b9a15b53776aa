package cmd

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/BioHazard786/Warpcall/cli/internal/config"
)

func TestFetchRooms(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/rooms" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id":"brave-otter","members":1},{"id":"calm-heron","members":2}]`))
	}))
	defer srv.Close()

	cfg := &config.Config{
		Domain:    "call.example.org",
		ServerURL: "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws",
	}

	rows, err := fetchRooms(context.Background(), cfg)
	if err != nil {
		t.Fatalf("fetchRooms() = %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %+v", rows)
	}
	if rows[0].ID != "brave-otter" || rows[0].Members != 1 || rows[0].Link != "https://call.example.org/r/brave-otter" {
		t.Errorf("first row = %+v", rows[0])
	}
}

func TestFetchRoomsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "hub stopped", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cfg := &config.Config{ServerURL: "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"}
	if _, err := fetchRooms(context.Background(), cfg); err == nil || !strings.Contains(err.Error(), "503") {
		t.Errorf("fetchRooms() = %v, want 503", err)
	}
}
