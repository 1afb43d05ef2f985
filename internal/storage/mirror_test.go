package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

type fakeObjectStore struct {
	objects   map[string][]byte
	putErr    error
	existsErr error
	puts      []string
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{objects: map[string][]byte{}}
}

func (f *fakeObjectStore) Exists(_ context.Context, key string) (bool, error) {
	if f.existsErr != nil {
		return false, f.existsErr
	}
	_, ok := f.objects[key]
	return ok, nil
}

func (f *fakeObjectStore) PutBlob(_ context.Context, key string, data []byte, _ string) error {
	if f.putErr != nil {
		return f.putErr
	}
	f.objects[key] = data
	f.puts = append(f.puts, key)
	return nil
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestSyncVideoUploadsPlaylistsAndCover(t *testing.T) {
	var requests []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests = append(requests, r.URL.Path)
		if strings.HasSuffix(r.URL.Path, ".m3u8") {
			io.WriteString(w, "#EXTM3U\n#EXTINF:10.0,\nseg0.ts\n#EXT-X-ENDLIST")
			return
		}
		io.WriteString(w, "jpeg-bytes")
	}))
	defer server.Close()

	store := newFakeObjectStore()
	keys := NewKeyDeriver("secret", "video_data")
	m := NewMirror(store, keys, testLogger())

	episodes := []string{server.URL + "/vod/42/1/index.m3u8"}
	err := m.SyncVideo(context.Background(), "42", "Some Title", episodes, server.URL+"/covers/42.jpg")
	if err != nil {
		t.Fatalf("SyncVideo failed: %v", err)
	}

	if len(store.puts) != 2 {
		t.Fatalf("Expected 2 uploads (playlist + cover), got %d: %v", len(store.puts), store.puts)
	}

	playlistKey := store.puts[0]
	if !strings.HasSuffix(playlistKey, "/origin.m3u8") {
		t.Errorf("Playlist key should end in /origin.m3u8, got %s", playlistKey)
	}
	if !strings.Contains(string(store.objects[playlistKey]), server.URL+"/vod/42/1/seg0.ts") {
		t.Errorf("Stored playlist segments not absolutized: %s", store.objects[playlistKey])
	}

	coverKey := store.puts[1]
	if !strings.HasSuffix(coverKey, "/cover.jpg") {
		t.Errorf("Cover key should end in /cover.jpg, got %s", coverKey)
	}
	if string(store.objects[coverKey]) != "jpeg-bytes" {
		t.Error("Cover bytes not stored verbatim")
	}
}

func TestSyncVideoSkipsExistingObjects(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("Unexpected download of %s for already-stored object", r.URL.Path)
	}))
	defer server.Close()

	store := newFakeObjectStore()
	keys := NewKeyDeriver("secret", "video_data")

	baseKey, err := keys.Derive("Some Title", "42", KindMediaSegment, 1)
	if err != nil {
		t.Fatalf("Derive failed: %v", err)
	}
	coverKey, err := keys.Derive("Some Title", "42", KindCover, 0)
	if err != nil {
		t.Fatalf("Derive failed: %v", err)
	}
	store.objects[baseKey+"/origin.m3u8"] = []byte("stored")
	store.objects[coverKey] = []byte("stored")

	m := NewMirror(store, keys, testLogger())
	episodes := []string{server.URL + "/vod/42/1/index.m3u8"}
	err = m.SyncVideo(context.Background(), "42", "Some Title", episodes, server.URL+"/covers/42.jpg")
	if err != nil {
		t.Fatalf("SyncVideo failed: %v", err)
	}
	if len(store.puts) != 0 {
		t.Errorf("Expected no uploads for already-stored objects, got %v", store.puts)
	}
}

func TestSyncVideoDownloadFailureFailsRecord(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	store := newFakeObjectStore()
	m := NewMirror(store, NewKeyDeriver("secret", "video_data"), testLogger())

	episodes := []string{server.URL + "/vod/42/1/index.m3u8"}
	err := m.SyncVideo(context.Background(), "42", "Some Title", episodes, server.URL+"/covers/42.jpg")
	if err == nil {
		t.Fatal("Expected error when playlist download fails")
	}
	if len(store.puts) != 0 {
		t.Errorf("Nothing should be uploaded after a failed download, got %v", store.puts)
	}
}

func TestSyncVideoMissingCoverURL(t *testing.T) {
	store := newFakeObjectStore()
	m := NewMirror(store, NewKeyDeriver("secret", "video_data"), testLogger())

	err := m.SyncVideo(context.Background(), "42", "Some Title", nil, "")
	if err == nil {
		t.Fatal("Expected error for record without cover url")
	}
}

func TestSyncVideoOversizedDownloadFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "#EXTM3U\n#EXTINF:10.0,\nseg0.ts\n#EXT-X-ENDLIST")
	}))
	defer server.Close()

	store := newFakeObjectStore()
	m := NewMirror(store, NewKeyDeriver("secret", "video_data"), testLogger())
	m.maxDownload = 8 // the playlist above is larger than this

	episodes := []string{server.URL + "/vod/42/1/index.m3u8"}
	err := m.SyncVideo(context.Background(), "42", "Some Title", episodes, server.URL+"/covers/42.jpg")
	if err == nil {
		t.Fatal("Expected error for a download exceeding the size limit")
	}
	if len(store.puts) != 0 {
		t.Errorf("A truncated body must never be uploaded, got %v", store.puts)
	}
}

func TestSyncVideoSkipsEmptyEpisodeLocators(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, ".m3u8") {
			io.WriteString(w, "#EXTM3U\nseg0.ts")
			return
		}
		io.WriteString(w, "jpeg-bytes")
	}))
	defer server.Close()

	store := newFakeObjectStore()
	m := NewMirror(store, NewKeyDeriver("secret", "video_data"), testLogger())

	episodes := []string{"", server.URL + "/vod/42/2/index.m3u8"}
	err := m.SyncVideo(context.Background(), "42", "Some Title", episodes, server.URL+"/covers/42.jpg")
	if err != nil {
		t.Fatalf("SyncVideo failed: %v", err)
	}
	// One playlist (episode 2) plus the cover.
	if len(store.puts) != 2 {
		t.Errorf("Expected 2 uploads, got %d: %v", len(store.puts), store.puts)
	}
}
