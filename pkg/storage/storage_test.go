package storage

import (
	"strings"
	"testing"
)

func TestNewDriver(t *testing.T) {
	if _, err := NewDriver("provider-proxy", "https://api.example.com", ""); err != nil {
		t.Errorf("provider-proxy driver: %v", err)
	}
	if _, err := NewDriver("local", "", "/data/audio"); err != nil {
		t.Errorf("local driver: %v", err)
	}
	if _, err := NewDriver("s3", "", ""); err == nil {
		t.Error("unknown driver should error")
	}
}

func TestProviderProxyDriver_RecordingURL(t *testing.T) {
	d := NewProviderProxyDriver("https://api.example.com")
	url, err := d.RecordingURL("call-1")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(url, "call-1") {
		t.Errorf("url missing call id: %s", url)
	}
}

func TestLocalDriver_RecordingURL(t *testing.T) {
	d := NewLocalDriver("/data/audio")
	url, err := d.RecordingURL("call-1")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(url, "file://") {
		t.Errorf("expected file URL, got %s", url)
	}
}
