package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/qadrim/vodsync/internal/config"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := &config.Config{
		APIBaseURL:        server.URL,
		APILoginEndpoint:  "/api/login",
		APIListEndpoint:   "/api/video/list",
		APIDetailEndpoint: "/api/video/detail",
		APIUsername:       "user",
		APIPassword:       "pass",
		APIDomain:         "example.com",
		APIPageSize:       20,
	}
	client, err := NewClient(cfg, testLogger())
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return client, server
}

func writeEnvelope(w http.ResponseWriter, code int, msg string, data interface{}) {
	raw, _ := json.Marshal(data)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"code": code,
		"msg":  msg,
		"data": json.RawMessage(raw),
	})
}

func TestLoginInstallsToken(t *testing.T) {
	var gotPayload map[string]string
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/login" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&gotPayload)
		writeEnvelope(w, 0, "ok", map[string]string{"token": "tok-abc"})
	}))

	token, err := client.Login(context.Background())
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if token != "tok-abc" {
		t.Errorf("Expected token 'tok-abc', got '%s'", token)
	}
	if gotPayload["user_name"] != "user" || gotPayload["password"] != "pass" || gotPayload["domain"] != "example.com" {
		t.Errorf("Login payload mismatch: %v", gotPayload)
	}

	// The token must be installed so the next call carries it.
	if client.token != "tok-abc" {
		t.Error("Login did not install the token on the client")
	}
}

func TestLoginRejected(t *testing.T) {
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, 1, "bad credentials", nil)
	}))

	if _, err := client.Login(context.Background()); err == nil {
		t.Fatal("Expected error for rejected login")
	}
}

func TestListPageWithoutToken(t *testing.T) {
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("No request should be sent without a token")
	}))

	_, err := client.ListPage(context.Background(), 1)
	if !errors.Is(err, ErrTokenExpired) {
		t.Errorf("Expected ErrTokenExpired, got %v", err)
	}
}

func TestListPageTokenExpired(t *testing.T) {
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, 402, "token expired", nil)
	}))
	client.SetToken("stale")

	_, err := client.ListPage(context.Background(), 1)
	if !errors.Is(err, ErrTokenExpired) {
		t.Errorf("Expected ErrTokenExpired, got %v", err)
	}
}

func TestListPageSuccess(t *testing.T) {
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Api-Token") != "tok-abc" {
			t.Errorf("Token header missing, got %q", r.Header.Get("X-Api-Token"))
		}
		var payload map[string]int
		json.NewDecoder(r.Body).Decode(&payload)
		if payload["page"] != 3 || payload["page_size"] != 20 {
			t.Errorf("List payload mismatch: %v", payload)
		}
		writeEnvelope(w, 0, "ok", map[string]interface{}{
			"total": 2,
			"list": []VideoSummary{
				{ID: "1", Title: "First"},
				{ID: "2", Title: "Second"},
			},
		})
	}))
	client.SetToken("tok-abc")

	items, err := client.ListPage(context.Background(), 3)
	if err != nil {
		t.Fatalf("ListPage failed: %v", err)
	}
	if len(items) != 2 || items[0].ID != "1" || items[1].Title != "Second" {
		t.Errorf("List items mismatch: %v", items)
	}
}

func TestFetchDetailSuccess(t *testing.T) {
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]string
		json.NewDecoder(r.Body).Decode(&payload)
		if payload["id"] != "42" || payload["lang_code"] != "en" {
			t.Errorf("Detail payload mismatch: %v", payload)
		}
		writeEnvelope(w, 0, "ok", map[string]interface{}{
			"list": []VideoDetail{
				{ID: "42", Title: "Some Title", VideoList: []string{"https://cdn/1.m3u8"}},
			},
		})
	}))
	client.SetToken("tok-abc")

	detail, err := client.FetchDetail(context.Background(), "42")
	if err != nil {
		t.Fatalf("FetchDetail failed: %v", err)
	}
	if detail.Title != "Some Title" || len(detail.VideoList) != 1 {
		t.Errorf("Detail mismatch: %+v", detail)
	}
}

func TestFetchDetailEmpty(t *testing.T) {
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, 0, "ok", map[string]interface{}{"list": []VideoDetail{}})
	}))
	client.SetToken("tok-abc")

	_, err := client.FetchDetail(context.Background(), "42")
	if !errors.Is(err, ErrEmptyDetail) {
		t.Errorf("Expected ErrEmptyDetail, got %v", err)
	}
}

func TestFetchDetailBlankRecord(t *testing.T) {
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, 0, "ok", map[string]interface{}{
			"list": []VideoDetail{{ID: "42"}},
		})
	}))
	client.SetToken("tok-abc")

	_, err := client.FetchDetail(context.Background(), "42")
	if !errors.Is(err, ErrEmptyDetail) {
		t.Errorf("Expected ErrEmptyDetail for blank record, got %v", err)
	}
}

func TestDescriptionFallback(t *testing.T) {
	d := &VideoDetail{Desc: "primary", AltDesc: "secondary"}
	if d.Description() != "primary" {
		t.Error("Primary description should win")
	}
	d.Desc = ""
	if d.Description() != "secondary" {
		t.Error("Should fall back to the secondary description")
	}
}
