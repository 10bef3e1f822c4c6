package storage

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Driver resolves where a call recording can be fetched from.
type Driver interface {
	RecordingURL(callID string) (string, error)
}

// ProviderProxyDriver serves recordings straight off the call-control
// provider's media API.
type ProviderProxyDriver struct {
	baseURL string
}

func NewProviderProxyDriver(apiBaseURL string) *ProviderProxyDriver {
	return &ProviderProxyDriver{
		baseURL: strings.TrimRight(apiBaseURL, "/"),
	}
}

func (d *ProviderProxyDriver) RecordingURL(callID string) (string, error) {
	if callID == "" {
		return "", fmt.Errorf("callID is required")
	}
	return fmt.Sprintf("%s/v1/calls/%s/recording.mp3", d.baseURL, callID), nil
}

// LocalDriver serves recordings downloaded to local disk.
type LocalDriver struct {
	basePath string
}

func NewLocalDriver(basePath string) *LocalDriver {
	return &LocalDriver{basePath: basePath}
}

func (d *LocalDriver) RecordingURL(callID string) (string, error) {
	if callID == "" {
		return "", fmt.Errorf("callID is required")
	}
	return "file://" + filepath.Join(d.basePath, callID+".mp3"), nil
}

// NewDriver builds the configured storage driver.
func NewDriver(driver, apiBaseURL, localPath string) (Driver, error) {
	switch driver {
	case "provider-proxy", "":
		return NewProviderProxyDriver(apiBaseURL), nil
	case "local":
		return NewLocalDriver(localPath), nil
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", driver)
	}
}
