package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dshills/inkwell/internal/config"
	"github.com/dshills/inkwell/internal/diag"
	"github.com/dshills/inkwell/internal/pageindex"
)

var (
	serveAddr  string
	serveSeed  string
	serveWatch bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the page-search service",
	Long: `Serves the page index over HTTP: POST /search takes
{"query": ...} and answers {"results": [{"id", "title"}, ...]}, the
wire shape the editor's autocomplete client speaks. GET /diag
upgrades to a websocket that streams the service log live, and
/healthz answers liveness probes.

Pages live in a SQLite index under the configured data directory;
--seed bulk-loads {id, title} records from a JSON file before
listening.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8650", "listen address")
	serveCmd.Flags().StringVar(&serveSeed, "seed", "", "load pages from a JSON seed file before serving")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", false, "reload the config file on change")
	rootCmd.AddCommand(serveCmd)
}

// hubWriter mirrors each log line to websocket listeners so /diag
// streams the service log.
type hubWriter struct {
	hub *diag.Hub
}

func (w hubWriter) Write(p []byte) (int, error) {
	w.hub.Broadcast(diag.Record{Type: "log", Message: string(bytes.TrimSpace(p))})
	return len(p), nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	hub := diag.NewHub()
	defer hub.Close()

	// Level lives on the global filter so a config reload can adjust
	// verbosity without rebuilding the logger.
	zerolog.SetGlobalLevel(cfg.Diag.ParsedLevel())
	log := zerolog.New(zerolog.MultiLevelWriter(os.Stderr, hubWriter{hub})).
		With().Timestamp().Logger()

	store, err := pageindex.NewStore(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening page index: %w", err)
	}
	defer store.Close()

	if serveSeed != "" {
		n, err := store.LoadSeed(cmd.Context(), serveSeed)
		if err != nil {
			return fmt.Errorf("loading seed: %w", err)
		}
		log.Info().Int("pages", n).Str("file", serveSeed).Msg("seed loaded")
	}

	if serveWatch {
		path := configPath
		if path == "" {
			path = config.DefaultPath()
		}
		w, err := config.WatchFile(path, func(next config.Config) {
			zerolog.SetGlobalLevel(next.Diag.ParsedLevel())
			log.Info().Str("level", next.Diag.Level).Msg("config reloaded")
		}, config.WithErrorHandler(func(err error) {
			log.Warn().Err(err).Msg("config reload failed")
		}))
		if err != nil {
			log.Warn().Err(err).Msg("config watch unavailable")
		} else {
			defer w.Close()
		}
	}

	mux := http.NewServeMux()
	mux.Handle("/search", pageindex.NewHandler(store,
		pageindex.WithLimit(cfg.Search.MaxItems),
		pageindex.WithLogger(log)))
	mux.Handle("/diag", hub)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	srv := &http.Server{
		Addr:              serveAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", serveAddr).Str("db", store.Path()).Msg("page search service listening")
		errCh <- srv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-stop:
	}

	log.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
