package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"crosswatch/internal/geometry"
)

const maxBoundaryFileSize = 1 * 1024 * 1024 // 1MB

// LoadBoundary reads a boundary definition from a JSON file. An empty path or
// a missing file yields the default boundary for frameHeight, which is unset
// when frameHeight is not yet known. A file that exists but is invalid is an
// error.
func LoadBoundary(path string, frameHeight int) (geometry.Boundary, error) {
	fallback := geometry.Boundary{}
	if frameHeight > 0 {
		fallback = geometry.DefaultBoundary(frameHeight)
	}
	if path == "" {
		return fallback, nil
	}

	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return geometry.Boundary{}, fmt.Errorf("boundary file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if errors.Is(err, fs.ErrNotExist) {
		return fallback, nil
	}
	if err != nil {
		return geometry.Boundary{}, fmt.Errorf("failed to stat boundary file: %w", err)
	}
	if fileInfo.Size() > maxBoundaryFileSize {
		return geometry.Boundary{}, fmt.Errorf("boundary file too large: %d bytes (max %d)", fileInfo.Size(), maxBoundaryFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return geometry.Boundary{}, fmt.Errorf("failed to read boundary file: %w", err)
	}

	b, err := geometry.ParseBoundary(data)
	if err != nil {
		return geometry.Boundary{}, fmt.Errorf("%s: %w", cleanPath, err)
	}
	return b, nil
}
