package models

import (
	"reflect"
	"testing"
)

func TestEpisodesRoundtrip(t *testing.T) {
	v := &Video{}
	urls := []string{"https://cdn/1.m3u8", "https://cdn/2.m3u8", "https://cdn/3.m3u8"}
	v.SetEpisodes(urls)

	if !reflect.DeepEqual(v.Episodes(), urls) {
		t.Errorf("Episodes mismatch: %v", v.Episodes())
	}
}

func TestEpisodesEmpty(t *testing.T) {
	v := &Video{}
	if v.Episodes() != nil {
		t.Errorf("Expected nil episodes for empty record, got %v", v.Episodes())
	}
}
