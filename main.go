package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/GiGurra/boa/pkg/boa"
	"github.com/rs/zerolog"

	"github.com/subwatch/subwatch/internal/config"
	"github.com/subwatch/subwatch/internal/engine"
	"github.com/subwatch/subwatch/internal/importer"
	"github.com/subwatch/subwatch/internal/output"
	"github.com/subwatch/subwatch/internal/server"
	"github.com/subwatch/subwatch/internal/store"
)

type Params struct {
	File           string  `descr:"Transaction file, optionally prefixed with a format (e.g. simple-json:data.json)" positional:"true" optional:"true"`
	Source         string  `descr:"Input format" alts:"simple-json,bank-xlsx" optional:"true"`
	Config         string  `descr:"Config file path" optional:"true"`
	Output         string  `descr:"Output mode" default:"table" alts:"table,json" strict:"true"`
	Currency       string  `descr:"Currency code used for display" optional:"true"`
	MinOccurrences int     `descr:"Minimum charges before a merchant is considered" default:"0"`
	Tolerance      float64 `descr:"Relative amount variance tolerance" default:"0"`
	Verbose        bool    `descr:"Log detection events" default:"false"`
	Serve          bool    `descr:"Run the HTTP API server" default:"false"`
	Listen         string  `descr:"Listen address for serve mode" optional:"true"`
	DB             string  `descr:"SQLite database path for serve mode" optional:"true"`
}

func main() {
	boa.NewCmdT[Params]("subwatch").
		WithShort("Detect recurring charges in bank transactions").
		WithLong("Analyzes transaction data to find recurring charges like subscriptions and memberships, combining known-service matching, category hints, billing-cadence analysis and amount stability.").
		WithRunFunc(func(params *Params) {
			if err := run(params); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		}).
		Run()
}

func run(params *Params) error {
	cfgPath := params.Config
	if cfgPath == "" {
		cfgPath = config.DefaultConfigPath()
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	ref, err := cfg.Reference()
	if err != nil {
		return err
	}

	opts := cfg.EngineOptions()
	if params.MinOccurrences > 0 {
		opts.MinOccurrences = params.MinOccurrences
	}
	if params.Tolerance > 0 {
		opts.AmountVarianceTolerance = params.Tolerance
	}

	if params.Serve {
		return serve(params, cfg, ref)
	}
	return detectFromFile(params, cfg, ref, opts)
}

func detectFromFile(params *Params, cfg *config.Config, ref *engine.Reference, opts engine.Options) error {
	if params.File == "" {
		return fmt.Errorf("no input file given (or use --serve)")
	}

	format, path := importer.ParseFileArg(params.File)
	if params.Source != "" {
		format = params.Source
	}
	if format == "" {
		format = formatFromExtension(path)
	}
	parser, err := importer.GetParser(format)
	if err != nil {
		return err
	}

	records, err := parser.Parse(path)
	if err != nil {
		return fmt.Errorf("parsing file: %w", err)
	}
	fmt.Printf("Loaded %d transactions\n", len(records))

	var tracer engine.Tracer
	if params.Verbose {
		tracer = engine.NewZerologTracer(newLogger())
	}
	candidates := engine.New(ref, tracer).Detect(records, opts)

	if len(candidates) == 0 {
		fmt.Println("No recurring charges detected.")
		return nil
	}

	currencyCode := cfg.Currency
	if params.Currency != "" {
		currencyCode = params.Currency
	}
	cur := output.GetCurrency(currencyCode)

	if params.Output == "json" {
		return output.PrintCandidatesJSON(os.Stdout, candidates, cur)
	}
	output.PrintCandidatesTable(os.Stdout, candidates, cur)
	return nil
}

func serve(params *Params, cfg *config.Config, ref *engine.Reference) error {
	log := newLogger()

	dbPath := cfg.DBPath
	if params.DB != "" {
		dbPath = params.DB
	}
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating db directory: %w", err)
		}
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	addr := cfg.ListenAddr
	if params.Listen != "" {
		addr = params.Listen
	}

	eng := engine.New(ref, engine.NewZerologTracer(log))
	srv, err := server.New(eng, st, log, addr)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func formatFromExtension(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return "simple-json"
	case ".xlsx":
		return "bank-xlsx"
	default:
		return ""
	}
}

func newLogger() zerolog.Logger {
	writer := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}
	return zerolog.New(writer).With().Timestamp().Logger()
}
