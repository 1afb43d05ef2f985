package site

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/qadrim/vodsync/internal/config"
	"github.com/qadrim/vodsync/internal/models"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testClient(t *testing.T, domains []string) *Client {
	t.Helper()
	cfg := &config.Config{
		SiteDomains:       domains,
		SiteAPIToken:      "site-token",
		SiteSyncEndpoint:  "/api/sync",
		SiteCleanEndpoint: "/api/clean",
	}
	client, err := NewClient(cfg, testLogger())
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return client
}

func TestPushReportsRejectedIDs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/sync" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer site-token" {
			t.Errorf("Missing bearer token, got %q", r.Header.Get("Authorization"))
		}

		var payload map[string]string
		json.NewDecoder(r.Body).Decode(&payload)
		var videos []models.Video
		if err := json.Unmarshal([]byte(payload["videos_data"]), &videos); err != nil {
			t.Errorf("videos_data is not a JSON-encoded batch: %v", err)
		}
		if len(videos) != 2 {
			t.Errorf("Expected 2 videos in batch, got %d", len(videos))
		}

		// Mixed string and numeric ids, as real mirrors answer.
		io.WriteString(w, `["17", 23]`)
	}))
	defer server.Close()

	client := testClient(t, []string{server.URL})
	batch := []models.Video{
		{ExternalID: "17", Title: "First"},
		{ExternalID: "23", Title: "Second"},
	}

	failed, err := client.Push(context.Background(), batch, server.URL)
	if err != nil {
		t.Fatalf("Push failed: %v", err)
	}
	if !reflect.DeepEqual(failed, []string{"17", "23"}) {
		t.Errorf("Expected failed ids [17 23], got %v", failed)
	}
}

func TestPushFullSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `[]`)
	}))
	defer server.Close()

	client := testClient(t, []string{server.URL})
	failed, err := client.Push(context.Background(), []models.Video{{ExternalID: "1"}}, server.URL)
	if err != nil {
		t.Fatalf("Push failed: %v", err)
	}
	if len(failed) != 0 {
		t.Errorf("Expected no failed ids, got %v", failed)
	}
}

func TestPushTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer server.Close()

	client := testClient(t, []string{server.URL})
	_, err := client.Push(context.Background(), []models.Video{{ExternalID: "1"}}, server.URL)
	if err == nil {
		t.Fatal("Expected error for a rejected request")
	}
}

func TestCleanup(t *testing.T) {
	var called bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/clean" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		called = true
	}))
	defer server.Close()

	client := testClient(t, []string{server.URL})
	if err := client.Cleanup(context.Background(), server.URL); err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}
	if !called {
		t.Error("Cleanup endpoint was not hit")
	}
}

func TestParseFailedIDs(t *testing.T) {
	ids, err := parseFailedIDs([]byte(`["a", 2, "c"]`))
	if err != nil {
		t.Fatalf("parseFailedIDs failed: %v", err)
	}
	if !reflect.DeepEqual(ids, []string{"a", "2", "c"}) {
		t.Errorf("Expected [a 2 c], got %v", ids)
	}

	ids, err = parseFailedIDs([]byte("  "))
	if err != nil || ids != nil {
		t.Errorf("Blank body should parse to nil, got %v / %v", ids, err)
	}

	if _, err := parseFailedIDs([]byte(`{"not":"a list"}`)); err == nil {
		t.Error("Expected error for non-array response")
	}
}
