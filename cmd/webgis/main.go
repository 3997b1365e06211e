package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/joeblew999/plat-webgis/internal/config"
	"github.com/joeblew999/plat-webgis/internal/logging"
	"github.com/joeblew999/plat-webgis/internal/server"
)

// Options defines all CLI flags and env vars for the map server.
// Flags: --host, --port, --data-dir, --web-dir, --templates-dir, --config, --log-level
// Env vars: SERVICE_HOST, SERVICE_PORT, SERVICE_DATA_DIR, SERVICE_WEB_DIR,
// SERVICE_TEMPLATES_DIR, SERVICE_CONFIG, SERVICE_LOG_LEVEL
type Options struct {
	Host         string `doc:"Host to bind to" default:"0.0.0.0"`
	Port         int    `doc:"Port to listen on" short:"p" default:"8086"`
	DataDir      string `doc:"Directory holding sources/, exports/ and the feature index" default:".data"`
	WebDir       string `doc:"Directory served under /webgis/ (icons/, sections/); empty uses <data-dir>/webgis"`
	TemplatesDir string `doc:"Read the HTML fragments from this directory instead of the built-in ones"`
	Config       string `doc:"Map configuration file (YAML); empty uses the built-in trail map"`
	LogLevel     string `doc:"Log level: trace, debug, info, warn, error, disabled" default:"info"`
}

func newServer(opts *Options, noIndex bool) (*server.Server, error) {
	log := logging.New(opts.LogLevel)

	mapCfg, err := config.Default()
	if opts.Config != "" {
		mapCfg, err = config.Load(opts.Config)
	}
	if err != nil {
		return nil, err
	}

	return server.New(server.Config{
		Host:         opts.Host,
		Port:         fmt.Sprintf("%d", opts.Port),
		DataDir:      opts.DataDir,
		WebDir:       opts.WebDir,
		TemplatesDir: opts.TemplatesDir,
		Map:          mapCfg,
		Logger:       log,
		NoIndex:      noIndex,
	})
}

// withServer builds a server, runs fn and closes the server before
// returning fn's error, so callers can exit without skipping the close.
func withServer(opts *Options, noIndex bool, fn func(*server.Server) error) error {
	srv, err := newServer(opts, noIndex)
	if err != nil {
		return err
	}
	runErr := fn(srv)
	if err := srv.Close(); err != nil && runErr == nil {
		runErr = fmt.Errorf("closing server: %w", err)
	}
	return runErr
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func main() {
	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		var httpSrv *http.Server
		ctx, cancel := context.WithCancel(context.Background())

		hooks.OnStart(func() {
			err := withServer(opts, false, func(srv *server.Server) error {
				addr := fmt.Sprintf("%s:%d", opts.Host, opts.Port)
				displayHost := opts.Host
				if displayHost == "0.0.0.0" {
					displayHost = "localhost"
				}
				baseURL := fmt.Sprintf("http://%s:%d", displayHost, opts.Port)

				fmt.Println()
				fmt.Printf("plat-webgis server starting...\n")
				fmt.Printf("  Server:  %s\n", baseURL)
				fmt.Printf("  Data:    %s\n", opts.DataDir)
				fmt.Println()
				fmt.Printf("  Viewer:  %s/viewer\n", baseURL)
				fmt.Printf("  Docs:    %s/docs\n", baseURL)
				fmt.Printf("  OpenAPI: %s/openapi.json\n", baseURL)
				fmt.Printf("  Metrics: %s/metrics\n", baseURL)
				fmt.Println()

				srv.Start(ctx)
				httpSrv = &http.Server{Addr: addr, Handler: srv, ReadHeaderTimeout: 10 * time.Second}
				if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					return err
				}
				return nil
			})
			if err != nil {
				cancel()
				fatal(err)
			}
		})

		hooks.OnStop(func() {
			cancel()
			if httpSrv == nil {
				return
			}
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			httpSrv.Shutdown(shutdownCtx)
		})
	})

	cli.Root().Use = "webgis"
	cli.Root().Short = "Trail map viewer with a categorized legend"
	cli.Root().Version = "0.1.0"

	// spec subcommand: export OpenAPI spec
	specCmd := &cobra.Command{
		Use:   "spec",
		Short: "Export OpenAPI spec (JSON by default, --yaml for YAML)",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			err := withServer(opts, true, func(srv *server.Server) error {
				spec := srv.OpenAPI()
				useYAML, _ := cmd.Flags().GetBool("yaml")

				var output []byte
				var err error
				if useYAML {
					output, err = yaml.Marshal(spec)
				} else {
					output, err = json.MarshalIndent(spec, "", "  ")
				}
				if err != nil {
					return fmt.Errorf("marshaling spec: %w", err)
				}
				fmt.Println(string(output))
				return nil
			})
			if err != nil {
				fatal(err)
			}
		}),
	}
	specCmd.Flags().BoolP("yaml", "y", false, "Output as YAML instead of JSON")
	cli.Root().AddCommand(specCmd)

	// export-tiles subcommand: write a layer's drawn features to PMTiles
	exportCmd := &cobra.Command{
		Use:   "export-tiles <layer>",
		Short: "Load the map and write a vector layer to exports/<layer>.pmtiles",
		Args:  cobra.ExactArgs(1),
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			err := withServer(opts, true, func(srv *server.Server) error {
				minZoom, _ := cmd.Flags().GetInt("min-zoom")
				maxZoom, _ := cmd.Flags().GetInt("max-zoom")
				path, err := srv.ExportTiles(cmd.Context(), args[0], minZoom, maxZoom)
				if err != nil {
					return err
				}
				fmt.Printf("Tiles written to %s\n", path)
				return nil
			})
			if err != nil {
				fatal(err)
			}
		}),
	}
	exportCmd.Flags().Int("min-zoom", 8, "Lowest zoom level")
	exportCmd.Flags().Int("max-zoom", 14, "Highest zoom level")
	cli.Root().AddCommand(exportCmd)

	cli.Run()
}
