package source

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/feedloom/feedloom/app/database"
)

func newRemoteServer(t *testing.T, apiVersion int) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/version", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"api_version": %d, "source_id": 7}`, apiVersion)
	})
	mux.HandleFunc("/api/sources/7/feeds", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]database.Feed{{ID: 1, Title: "Remote Feed"}})
	})
	mux.HandleFunc("/api/sources/7/unread-counts", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"1": 4}`)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func remoteRecord(serverURL string) database.Source {
	return database.Source{
		ID:         1,
		Type:       TypeRemote,
		Title:      "Remote",
		ConfigData: fmt.Sprintf(`{"url": %q, "api_key": "secret"}`, serverURL),
	}
}

func TestNewRemote_Handshake(t *testing.T) {
	server := newRemoteServer(t, APIVersion)

	src, err := New(remoteRecord(server.URL), Deps{HTTPClient: server.Client()})
	if err != nil {
		t.Fatalf("Handshake failed: %v", err)
	}

	feeds, err := src.GetFeeds()
	if err != nil {
		t.Fatalf("GetFeeds failed: %v", err)
	}
	if len(feeds) != 1 || feeds[0].Title != "Remote Feed" {
		t.Errorf("Expected remote feed list, got %v", feeds)
	}

	counts, err := src.GetUnreadCounts()
	if err != nil {
		t.Fatalf("GetUnreadCounts failed: %v", err)
	}
	if counts[1] != 4 {
		t.Errorf("Expected 4 unread for feed 1, got %v", counts)
	}
}

func TestNewRemote_VersionMismatch(t *testing.T) {
	server := newRemoteServer(t, APIVersion+1)

	_, err := New(remoteRecord(server.URL), Deps{HTTPClient: server.Client()})
	if err == nil {
		t.Fatal("Expected handshake to fail on version mismatch")
	}
	if !errors.Is(err, ErrUnsupportedAPIVersion) {
		t.Errorf("Expected ErrUnsupportedAPIVersion, got %v", err)
	}
}

func TestNewRemote_Unreachable(t *testing.T) {
	server := newRemoteServer(t, APIVersion)
	serverURL := server.URL
	server.Close()

	_, err := New(remoteRecord(serverURL), Deps{})
	if err == nil {
		t.Fatal("Expected handshake to fail against a dead server")
	}
}

func TestNewRemote_BadConfig(t *testing.T) {
	_, err := New(database.Source{Type: TypeRemote, ConfigData: "{not json"}, Deps{})
	if err == nil {
		t.Fatal("Expected error for malformed config")
	}

	_, err = New(database.Source{Type: TypeRemote, ConfigData: "{}"}, Deps{})
	if err == nil {
		t.Fatal("Expected error for config without url")
	}
}
