// Command dazense serves a declarative metrics semantic layer over
// HTTP. Run with no arguments to serve, or "dazense scaffold" to draft
// a semantic model document from a configured database's schema.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/ai4data/dazense/internal/config"
	"github.com/ai4data/dazense/internal/dataset"
	_ "github.com/ai4data/dazense/internal/dataset/memory"
	_ "github.com/ai4data/dazense/internal/dataset/mysql"
	_ "github.com/ai4data/dazense/internal/dataset/postgres"
	"github.com/ai4data/dazense/internal/logger"
	"github.com/ai4data/dazense/internal/semantic"
	"github.com/ai4data/dazense/internal/server"
)

func main() {
	flags := pflag.NewFlagSet("dazense", pflag.ExitOnError)
	cfgFile := flags.StringP("config", "c", "", "path to config file")
	flags.String("listen", ":8080", "HTTP listen address")
	flags.String("project-dir", ".", "project directory holding the semantic model document")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "json", "log format (json or console)")
	scaffoldDB := flags.String("database", "", "database to scaffold from (scaffold command)")
	scaffoldSchema := flags.String("schema", semantic.DefaultSchema, "schema to scaffold from (scaffold command)")
	if err := flags.Parse(os.Args[1:]); err != nil {
		fatal(err)
	}

	cfg, err := config.Load(*cfgFile, flags)
	if err != nil {
		fatal(err)
	}

	log := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stdout,
	})

	switch flags.Arg(0) {
	case "", "serve":
		if err := serve(cfg, log); err != nil {
			log.Errorf("server exited: %v", err)
			os.Exit(1)
		}
	case "scaffold":
		if err := scaffold(cfg, *scaffoldDB, *scaffoldSchema); err != nil {
			fatal(err)
		}
	default:
		fatal(fmt.Errorf("unknown command %q", flags.Arg(0)))
	}
}

func serve(cfg *config.Config, log *logger.Logger) error {
	source, err := cfg.DocumentSource()
	if err != nil {
		return err
	}

	srv := server.New(source, cfg.Databases, log)
	httpSrv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.With().Str("listen", cfg.Listen).Str("document", source.Location()).Logger().
			Info("server starting")
		errCh <- httpSrv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		log.Infof("received %s, shutting down", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// scaffold introspects one configured database and prints a draft
// semantic model document to stdout.
func scaffold(cfg *config.Config, dbName, schema string) error {
	if dbName == "" {
		if len(cfg.Databases) != 1 {
			return fmt.Errorf("--database is required when %d databases are configured", len(cfg.Databases))
		}
		dbName = cfg.Databases[0].Name
	}

	var dbCfg *dataset.Config
	for i := range cfg.Databases {
		if cfg.Databases[i].Name == dbName {
			dbCfg = &cfg.Databases[i]
			break
		}
	}
	if dbCfg == nil {
		return fmt.Errorf("database %q is not configured", dbName)
	}

	ctx := context.Background()
	conn, err := dataset.Open(ctx, *dbCfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	inspector, ok := conn.(dataset.Inspector)
	if !ok {
		return fmt.Errorf("database kind %q does not support schema introspection", dbCfg.Kind)
	}

	info, err := dataset.InspectSchema(ctx, inspector, schema)
	if err != nil {
		return err
	}

	data, err := semantic.MarshalDocument(semantic.Scaffold(info))
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(data)
	return err
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "dazense:", err)
	os.Exit(1)
}
