// Package service lists the files the map server reads and writes, and
// carries map state change events between handlers.
package service

// SourceFile is a GeoJSON file in the sources directory.
type SourceFile struct {
	Name     string `json:"name" doc:"File name" example:"tracks.geojson"`
	Size     string `json:"size" doc:"Human-readable file size" example:"1.2 MB"`
	FileType string `json:"fileType" doc:"File type" example:"GeoJSON"`
	Layer    string `json:"layer,omitempty" doc:"Layer reading this file, if any" example:"tracks"`
}

// TileFile is a PMTiles archive in the exports directory.
type TileFile struct {
	Name    string `json:"name" doc:"PMTiles file name" example:"tracks.pmtiles"`
	Size    string `json:"size" doc:"Human-readable file size" example:"5.4 MB"`
	MinZoom int    `json:"minZoom" doc:"Lowest zoom level in the archive"`
	MaxZoom int    `json:"maxZoom" doc:"Highest zoom level in the archive"`
	Tiles   uint64 `json:"tiles" doc:"Number of addressed tiles"`
}
