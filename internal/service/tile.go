package service

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/joeblew999/plat-webgis/internal/tiles"
)

// TileService manages the PMTiles exports.
type TileService struct {
	tilesDir string
}

// NewTileService creates a tile service rooted at dataDir/exports.
func NewTileService(dataDir string) *TileService {
	return &TileService{
		tilesDir: filepath.Join(dataDir, "exports"),
	}
}

// List returns all readable PMTiles archives, sorted by name.
func (s *TileService) List() ([]TileFile, error) {
	entries, err := os.ReadDir(s.tilesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []TileFile{}, nil
		}
		return nil, err
	}

	files := []TileFile{}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".pmtiles" {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}
		h, err := s.header(entry.Name())
		if err != nil {
			continue
		}

		files = append(files, TileFile{
			Name:    entry.Name(),
			Size:    formatSize(info.Size()),
			MinZoom: int(h.MinZoom),
			MaxZoom: int(h.MaxZoom),
			Tiles:   h.Tiles,
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

func (s *TileService) header(name string) (tiles.Header, error) {
	f, err := os.Open(filepath.Join(s.tilesDir, name))
	if err != nil {
		return tiles.Header{}, err
	}
	defer f.Close()
	return tiles.ReadHeader(f)
}

// Write stores an archive as <name>.pmtiles and returns its path.
func (s *TileService) Write(name string, a *tiles.Archive) (string, error) {
	if err := os.MkdirAll(s.tilesDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(s.tilesDir, name+".pmtiles")
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if _, err := a.WriteTo(f); err != nil {
		f.Close()
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	return path, f.Close()
}

// TilesDir returns the path to the exports directory.
func (s *TileService) TilesDir() string {
	return s.tilesDir
}

// formatSize returns a human-readable file size.
func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
