package cmd

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gpubsub "cloud.google.com/go/pubsub"
	gcstorage "cloud.google.com/go/storage"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rankscope/rankscope/internal/api"
	"github.com/rankscope/rankscope/internal/dataforseo"
	"github.com/rankscope/rankscope/internal/metrics"
	"github.com/rankscope/rankscope/internal/progress"
	"github.com/rankscope/rankscope/internal/progress/sinks"
	pspub "github.com/rankscope/rankscope/internal/publisher/pubsub"
	"github.com/rankscope/rankscope/internal/runner"
	"github.com/rankscope/rankscope/internal/storage"
	"github.com/rankscope/rankscope/internal/storage/gcs"
	"github.com/rankscope/rankscope/internal/storage/postgres"
)

type checkFlags struct {
	mode         string
	keywordsFile string
	outFile      string
}

func newCheckCmd() *cobra.Command {
	var flags checkFlags
	cmd := &cobra.Command{
		Use:   "check <domain> [keyword]...",
		Short: "Check where a domain ranks for a set of keywords",
		Long: `Runs one rank retrieval: each keyword is looked up in search results and
the best organic position of the target domain is recorded. Keywords are
taken from the arguments and/or --keywords-file (one per line).`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, args, flags)
		},
	}
	cmd.Flags().StringVar(&flags.mode, "mode", "live", "delivery mode: live or standard")
	cmd.Flags().StringVar(&flags.keywordsFile, "keywords-file", "", "file with one keyword per line")
	cmd.Flags().StringVarP(&flags.outFile, "out", "o", "", "write results as CSV to this file")
	return cmd
}

func runCheck(cmd *cobra.Command, args []string, flags checkFlags) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mode, err := runner.ParseMode(flags.mode)
	if err != nil {
		return err
	}
	domain := args[0]
	keywords := args[1:]
	if flags.keywordsFile != "" {
		fromFile, err := readKeywordsFile(flags.keywordsFile)
		if err != nil {
			return err
		}
		keywords = append(keywords, fromFile...)
	}
	if len(keywords) == 0 {
		return errors.New("no keywords given (pass arguments or --keywords-file)")
	}

	metrics.Init()
	cfg := rt.cfg
	logger := rt.logger

	client, err := dataforseo.New(dataforseo.Config{
		BaseURL:    cfg.API.BaseURL,
		Login:      cfg.API.Login,
		Password:   cfg.API.Password,
		SerpType:   cfg.API.SerpType,
		Timeout:    cfg.RequestTimeout(),
		MaxRetries: cfg.API.MaxRetries,
		BackoffMin: time.Duration(cfg.API.BackoffInitialMs) * time.Millisecond,
		BackoffMax: time.Duration(cfg.API.BackoffMaxMs) * time.Millisecond,
	}, logger)
	if err != nil {
		return fmt.Errorf("init api client: %w", err)
	}

	store, err := storage.NewFSStore(storage.FSConfig{Dir: cfg.Storage.ResultsDir}, logger)
	if err != nil {
		return fmt.Errorf("init run store: %w", err)
	}

	hub := progress.NewHub(progress.Config{Logger: logger},
		sinks.NewLog(logger),
		sinks.NewPrometheus(),
	)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := hub.Close(closeCtx); err != nil {
			logger.Warn("progress hub close failed", zap.Error(err))
		}
	}()

	opts := runner.Options{Store: store, Emitter: hub}

	if cfg.DB.DSN != "" {
		sink, err := postgres.NewRankStore(ctx, postgres.RankStoreConfig{
			DSN:      cfg.DB.DSN,
			Table:    cfg.DB.Table,
			MaxConns: cfg.DB.MaxConns,
		})
		if err != nil {
			return fmt.Errorf("init postgres sink: %w", err)
		}
		defer sink.Close()
		opts.Sink = sink
	}

	if cfg.PubSub.ProjectID != "" && cfg.PubSub.TopicName != "" {
		psClient, err := gpubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return fmt.Errorf("init pubsub client: %w", err)
		}
		defer psClient.Close()
		pub := pspub.New(psClient)
		defer pub.Close()
		opts.Publisher = pub
		opts.Topic = cfg.PubSub.TopicName
	}

	if cfg.Server.Enabled {
		shutdown := startServer(cfg.Server.Port, store, logger)
		defer shutdown()
	}

	run, err := runner.New(client, cfg, logger, opts).Run(ctx, runner.Request{
		Keywords: keywords,
		Domain:   domain,
		Mode:     mode,
	})
	if err != nil {
		return err
	}

	if flags.outFile != "" {
		if err := writeCSVFile(flags.outFile, run); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", flags.outFile)
	}

	if cfg.Storage.GCSBucket != "" {
		uri, err := uploadRun(ctx, cfg.Storage.GCSBucket, run)
		if err != nil {
			logger.Warn("gcs upload failed", zap.Error(err))
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "uploaded %s\n", uri)
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "run %s: %d/%d keywords ranked for %s\n",
		run.ID, run.Found, run.Total, run.Domain)
	return nil
}

func readKeywordsFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open keywords file: %w", err)
	}
	defer f.Close()

	var keywords []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		keywords = append(keywords, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read keywords file: %w", err)
	}
	return keywords, nil
}

func writeCSVFile(path string, run storage.RunRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	if err := storage.WriteCSV(f, run.Records); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func uploadRun(ctx context.Context, bucket string, run storage.RunRecord) (string, error) {
	client, err := gcstorage.NewClient(ctx)
	if err != nil {
		return "", fmt.Errorf("init gcs client: %w", err)
	}
	defer client.Close()

	exporter, err := gcs.New(client, gcs.Config{Bucket: bucket, Prefix: "exports"})
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := storage.WriteCSV(&buf, run.Records); err != nil {
		return "", err
	}
	return exporter.Upload(ctx, "run_"+run.ID+".csv", "text/csv", &buf)
}

// startServer exposes /healthz, /metrics, and the run history API while a
// check runs. Returns a shutdown func.
func startServer(port int, store storage.RunStore, logger *zap.Logger) func() {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           api.NewServer(store, logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", zap.Error(err))
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Warn("http server shutdown failed", zap.Error(err))
		}
	}
}
