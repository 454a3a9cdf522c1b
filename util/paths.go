package util

import (
	"os"
	"path/filepath"
)

// GetDataDir returns the data directory path
func GetDataDir() string {
	if envDir := os.Getenv("BLUE_LLCP_DIR"); envDir != "" {
		return envDir
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "blue-llcp-data")
	}
	return filepath.Join(home, ".blue-llcp-data")
}

// GetConnTraceDir returns the trace directory for one connection instance
func GetConnTraceDir(connID string) string {
	return filepath.Join(GetDataDir(), "traces", connID)
}
