package service

import (
	"os"
	"path/filepath"
	"strings"
)

// SourceService lists the GeoJSON source files.
type SourceService struct {
	sourcesDir string
	layers     map[string]string
}

// NewSourceService creates a source service rooted at dataDir/sources.
// layers maps file names to the layer reading them.
func NewSourceService(dataDir string, layers map[string]string) *SourceService {
	return &SourceService{
		sourcesDir: filepath.Join(dataDir, "sources"),
		layers:     layers,
	}
}

// List returns all GeoJSON files, sorted by name.
func (s *SourceService) List() ([]SourceFile, error) {
	entries, err := os.ReadDir(s.sourcesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []SourceFile{}, nil
		}
		return nil, err
	}

	files := []SourceFile{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".geojson" && ext != ".json" {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		files = append(files, SourceFile{
			Name:     entry.Name(),
			Size:     formatSize(info.Size()),
			FileType: "GeoJSON",
			Layer:    s.layers[entry.Name()],
		})
	}
	return files, nil
}

// SourcesDir returns the path to the sources directory.
func (s *SourceService) SourcesDir() string {
	return s.sourcesDir
}
