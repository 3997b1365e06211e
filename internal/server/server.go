package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/paulmach/orb/maptile"
	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-webgis/internal/api"
	"github.com/joeblew999/plat-webgis/internal/api/viewer"
	"github.com/joeblew999/plat-webgis/internal/config"
	"github.com/joeblew999/plat-webgis/internal/db"
	"github.com/joeblew999/plat-webgis/internal/humastar"
	"github.com/joeblew999/plat-webgis/internal/layer"
	"github.com/joeblew999/plat-webgis/internal/metrics"
	"github.com/joeblew999/plat-webgis/internal/service"
	"github.com/joeblew999/plat-webgis/internal/session"
	"github.com/joeblew999/plat-webgis/internal/source"
	"github.com/joeblew999/plat-webgis/internal/templates"
	"github.com/joeblew999/plat-webgis/internal/tiles"
)

// Config holds the server configuration.
type Config struct {
	Host    string
	Port    string
	DataDir string
	// Map is the map configuration; nil uses the embedded default.
	Map    *config.Config
	Logger zerolog.Logger
	// Fetcher overrides how vector sources are read. By default sources
	// are files under DataDir/sources, or http(s) URLs.
	Fetcher source.Fetcher
	// NoIndex skips the DuckDB feature index.
	NoIndex bool
	// WebDir holds the static assets served under /webgis/: the POI icons
	// in icons/ and the section images in sections/. Empty uses
	// DataDir/webgis.
	WebDir string
	// TemplatesDir, when set, reads the HTML fragments from disk instead of
	// the embedded copies.
	TemplatesDir string
}

// Server is the map HTTP server.
type Server struct {
	config   Config
	log      zerolog.Logger
	mux      *http.ServeMux
	handler  http.Handler
	humaAPI  huma.API
	links    *humastar.Links
	metrics  *metrics.Metrics
	index    *db.Index
	session  *session.Session
	services *api.Services
	renderer *templates.Renderer
}

// New creates a new map server. The vector sources are not fetched until
// Start.
func New(cfg Config) (*Server, error) {
	if cfg.Map == nil {
		m, err := config.Default()
		if err != nil {
			return nil, err
		}
		cfg.Map = m
	}
	if cfg.WebDir == "" {
		cfg.WebDir = filepath.Join(cfg.DataDir, "webgis")
	}
	if cfg.Fetcher == nil {
		cfg.Fetcher = source.AutoFetcher{
			Local:  source.FileFetcher{Dir: filepath.Join(cfg.DataDir, "sources")},
			Remote: source.HTTPFetcher{Client: &http.Client{Timeout: 20 * time.Second}, Attempts: 3, Delay: 500 * time.Millisecond},
		}
	}

	mux := http.NewServeMux()
	links := humastar.NewLinks(viewer.Tag)

	humaConfig := huma.DefaultConfig("plat-webgis API", api.Version)
	humaConfig.Info.Description = "Trail map viewer API: layers, legend categories, feature selection and vector tiles."
	humaConfig.Servers = []*huma.Server{
		{URL: fmt.Sprintf("http://%s:%s", cfg.Host, cfg.Port), Description: "Local server"},
	}
	// Disable $schema property in responses (cleaner JSON)
	humaConfig.CreateHooks = []func(huma.Config) huma.Config{}
	humaConfig.Transformers = append(humaConfig.Transformers, links.Transformer())

	humaAPI := humago.New(mux, humaConfig)

	s := &Server{
		config:  cfg,
		log:     cfg.Logger.With().Str("component", "server").Logger(),
		mux:     mux,
		humaAPI: humaAPI,
		links:   links,
		metrics: metrics.New(),
	}

	if !cfg.NoIndex {
		index, err := db.Open(db.Config{DataDir: cfg.DataDir, DBName: "webgis"})
		if err != nil {
			s.log.Warn().Err(err).Msg("feature index unavailable")
		} else {
			s.index = index
		}
	}

	sess, err := session.New(session.Options{
		Config:  cfg.Map,
		Fetcher: cfg.Fetcher,
		Logger:  cfg.Logger,
		Metrics: s.metrics,
		Index:   s.index,
	})
	if err != nil {
		s.Close()
		return nil, err
	}
	s.session = sess

	renderer, err := templates.New()
	if cfg.TemplatesDir != "" {
		renderer, err = templates.NewFromDir(cfg.TemplatesDir)
	}
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("parsing templates: %w", err)
	}
	s.renderer = renderer

	sourceLayers := map[string]string{}
	for _, l := range cfg.Map.Layers {
		if l.Source != "" {
			sourceLayers[l.Source] = l.ID
		}
	}
	s.services = &api.Services{
		Session: sess,
		Tile:    service.NewTileService(cfg.DataDir),
		Source:  service.NewSourceService(cfg.DataDir, sourceLayers),
		Index:   s.index,
	}

	s.routes()
	s.handler = s.metrics.Middleware(s.mux)
	return s, nil
}

// Start loads the vector sources in the background. The legend is filled
// once every source loaded; a failed load is logged and reported by
// /api/v1/status.
func (s *Server) Start(ctx context.Context) {
	go func() {
		if err := s.session.Load(ctx); err != nil {
			s.log.Error().Err(err).Msg("map unavailable")
		}
	}()
}

// Session returns the map session.
func (s *Server) Session() *session.Session { return s.session }

// OpenAPI returns the OpenAPI document.
func (s *Server) OpenAPI() *huma.OpenAPI { return s.humaAPI.OpenAPI() }

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Close closes server resources.
func (s *Server) Close() error {
	if s.index == nil {
		return nil
	}
	return s.index.Close()
}

func (s *Server) routes() {
	api.RegisterRoutes(s.humaAPI, s.services, s.config.DataDir)
	viewer.New(s.session, s.renderer, s.config.Logger).RegisterRoutes(s.humaAPI)
	s.links.Build(s.humaAPI)

	s.mux.Handle("GET /metrics", s.metrics.Handler())
	s.mux.HandleFunc("GET /tiles/{layer}/{z}/{x}/{y}", s.handleTile)
	s.mux.Handle("/exports/", http.StripPrefix("/exports/", s.handleExports(s.services.Tile.TilesDir())))
	s.mux.Handle("/webgis/", http.StripPrefix("/webgis/", http.FileServer(http.Dir(s.config.WebDir))))

	s.mux.HandleFunc("GET /viewer", s.handleViewer)
	s.mux.HandleFunc("/", s.handleRoot)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	for _, link := range s.links.Root() {
		w.Header().Add("Link", link)
	}
	state, _ := s.session.Status()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"service": "plat-webgis",
		"status":  "running",
		"map":     string(state),
	})
}

type viewerPage struct {
	Title string
	View  template.JS
}

func (s *Server) handleViewer(w http.ResponseWriter, r *http.Request) {
	view, err := api.ViewJSON(s.session)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	html, err := s.renderer.Render("viewer", viewerPage{
		Title: s.session.Config().Title,
		View:  template.JS(view),
	})
	if err != nil {
		s.log.Error().Err(err).Msg("rendering viewer")
		http.Error(w, "rendering viewer", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(html))
}

// handleTile renders one Mapbox vector tile of the features currently drawn
// on a layer: hidden layers and hidden categories produce empty tiles.
func (s *Server) handleTile(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("layer")
	t, err := parseTile(r.PathValue("z"), r.PathValue("x"), strings.TrimSuffix(r.PathValue("y"), ".mvt"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	l, ok := s.session.Layer(id)
	if !ok || l.Kind() != layer.KindVector {
		http.NotFound(w, r)
		return
	}
	features, err := s.session.Features(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	data, err := tiles.Render(id, mvtFeatures(features), t)
	if err != nil {
		s.log.Error().Err(err).Str("layer", id).Msg("rendering tile")
		http.Error(w, "rendering tile", http.StatusInternalServerError)
		return
	}
	s.metrics.IncTileServed(id)

	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Cache-Control", "no-cache")
	if data == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.mapbox-vector-tile")
	w.Header().Set("Content-Encoding", "gzip")
	w.Write(data)
}

func parseTile(zs, xs, ys string) (maptile.Tile, error) {
	z, err := strconv.ParseUint(zs, 10, 32)
	if err != nil || z > tiles.MaxZoom {
		return maptile.Tile{}, fmt.Errorf("invalid zoom %q", zs)
	}
	x, errX := strconv.ParseUint(xs, 10, 32)
	y, errY := strconv.ParseUint(ys, 10, 32)
	if err := errors.Join(errX, errY); err != nil {
		return maptile.Tile{}, fmt.Errorf("invalid tile coordinates: %w", err)
	}
	if n := uint64(1) << z; x >= n || y >= n {
		return maptile.Tile{}, fmt.Errorf("tile %d/%d/%d out of range", z, x, y)
	}
	return maptile.New(uint32(x), uint32(y), maptile.Zoom(z)), nil
}

// handleExports serves the PMTiles archives with the range headers the
// PMTiles client needs.
func (s *Server) handleExports(dir string) http.Handler {
	files := http.FileServer(http.Dir(dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, HEAD, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Range")
		w.Header().Set("Access-Control-Expose-Headers", "Content-Length, Content-Range, Accept-Ranges")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		files.ServeHTTP(w, r)
	})
}
