package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	_ "net/http/pprof"

	"github.com/jonboulle/clockwork"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/slack-go/slack"
	"github.com/spf13/cobra"

	"github.com/sentimetry/pipeline/internal/api"
	"github.com/sentimetry/pipeline/internal/export"
	"github.com/sentimetry/pipeline/internal/gateway"
	"github.com/sentimetry/pipeline/internal/metrics"
	"github.com/sentimetry/pipeline/internal/monitor"
	"github.com/sentimetry/pipeline/internal/notify"
	"github.com/sentimetry/pipeline/internal/pipeline"
	"github.com/sentimetry/pipeline/internal/store"
	"github.com/sentimetry/pipeline/pkg/duck"
)

const (
	defaultDBPath        = ".tmp/sentimetry/warehouse.duckdb"
	defaultCatalogName   = "sentilake"
	defaultListenAddr    = "0.0.0.0:8090"
	defaultMetricsAddr   = "0.0.0.0:8080"
	defaultInterval      = 5 * time.Minute
	defaultLookback      = 7 * 24 * time.Hour
	defaultLikeThreshold = int64(10)
	defaultTrendDays     = 7
	defaultExportDir     = ".tmp/sentimetry/export"
)

var (
	verbose bool

	dbPath             string
	duckLakeCatalog    string
	duckLakeCatalogURI string
	duckLakeStorageURI string

	interval      time.Duration
	lookback      time.Duration
	workers       int
	likeThreshold int64
	languagesCSV  string
	skipRetweets  bool

	processDates []string

	trendDays  int
	trendDate  string
	listenAddr string

	metricsAddr string
	pgAddr      string
	corsOrigins string
	enablePprof bool

	exportDir      string
	exportDays     int
	clickhouseAddr string

	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "sentimetry",
	Short: "Sentimetry social sentiment pipeline",
	Long: `Sentimetry processes collected social posts into scored sentiment
partitions, hourly and daily rollups, and reporting views, backed by a
DuckDB warehouse or a DuckLake catalog.`,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("sentimetry %s (commit: %s, built: %s)\n", version, commit, date)
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Process all stale partitions once and exit",
	Run: func(cmd *cobra.Command, args []string) {
		log := newLogger(verbose)
		log.Info("Operation started: run_stale_partitions")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		s, closeFn, err := openStore(ctx, log, false)
		if err != nil {
			log.Error("Operation failed: open_store", "error", err)
			os.Exit(1)
		}
		defer closeFn()

		p, err := pipeline.New(pipelineConfig(log, s))
		if err != nil {
			log.Error("Operation failed: new_pipeline", "error", err)
			os.Exit(1)
		}

		results, err := p.RunStale(ctx)
		if err != nil {
			log.Error("Operation failed: run_stale_partitions", "error", err)
			os.Exit(1)
		}
		renderResults(results)
		log.Info("Operation completed: run_stale_partitions", "partitions", len(results))
	},
}

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Process specific partition dates",
	Run: func(cmd *cobra.Command, args []string) {
		log := newLogger(verbose)

		if len(processDates) == 0 {
			log.Error("Operation failed: process_partitions", "error", "at least one --date is required")
			os.Exit(1)
		}
		dates := make([]time.Time, 0, len(processDates))
		for _, raw := range processDates {
			d, err := time.Parse(time.DateOnly, raw)
			if err != nil {
				log.Error("Operation failed: process_partitions", "error", fmt.Sprintf("invalid date %q (expected YYYY-MM-DD)", raw))
				os.Exit(1)
			}
			dates = append(dates, d)
		}
		log.Info("Operation started: process_partitions", "dates", strings.Join(processDates, ","))

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		s, closeFn, err := openStore(ctx, log, false)
		if err != nil {
			log.Error("Operation failed: open_store", "error", err)
			os.Exit(1)
		}
		defer closeFn()

		p, err := pipeline.New(pipelineConfig(log, s))
		if err != nil {
			log.Error("Operation failed: new_pipeline", "error", err)
			os.Exit(1)
		}

		results, err := p.RunDates(ctx, dates)
		if err != nil {
			log.Error("Operation failed: process_partitions", "error", err)
			os.Exit(1)
		}
		renderResults(results)
		log.Info("Operation completed: process_partitions", "partitions", len(results))
	},
}

var trendsCmd = &cobra.Command{
	Use:   "trends",
	Short: "Show sentiment trends (daily, or hourly with --date)",
	Run: func(cmd *cobra.Command, args []string) {
		log := newLogger(verbose)

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		s, closeFn, err := openStore(ctx, log, true)
		if err != nil {
			log.Error("Operation failed: open_store", "error", err)
			os.Exit(1)
		}
		defer closeFn()

		if trendDate != "" {
			d, err := time.Parse(time.DateOnly, trendDate)
			if err != nil {
				log.Error("Operation failed: show_trends", "error", fmt.Sprintf("invalid date %q (expected YYYY-MM-DD)", trendDate))
				os.Exit(1)
			}
			trends, err := s.GetHourlyTrends(ctx, d)
			if err != nil {
				log.Error("Operation failed: show_trends", "error", err)
				os.Exit(1)
			}
			renderHourlyTrends(trends)
			return
		}

		trends, err := s.GetDailyTrends(ctx, trendDays)
		if err != nil {
			log.Error("Operation failed: show_trends", "error", err)
			os.Exit(1)
		}
		renderDailyTrends(trends)
	},
}

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show warehouse summary",
	Run: func(cmd *cobra.Command, args []string) {
		log := newLogger(verbose)

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		s, closeFn, err := openStore(ctx, log, true)
		if err != nil {
			log.Error("Operation failed: open_store", "error", err)
			os.Exit(1)
		}
		defer closeFn()

		summary, err := s.GetSummary(ctx)
		if err != nil {
			log.Error("Operation failed: show_summary", "error", err)
			os.Exit(1)
		}
		renderSummary(summary)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the pipeline service: scheduler, monitor, HTTP API and optional postgres gateway",
	Run: func(cmd *cobra.Command, args []string) {
		if err := serve(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export reporting data to external sinks",
}

var exportCSVCmd = &cobra.Command{
	Use:   "csv",
	Short: "Export trends, hourly trends and summary to CSV files (and S3 when configured)",
	Run: func(cmd *cobra.Command, args []string) {
		log := newLogger(verbose)
		log.Info("Operation started: export_csv", "output_dir", exportDir)

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		s, closeFn, err := openStore(ctx, log, true)
		if err != nil {
			log.Error("Operation failed: open_store", "error", err)
			os.Exit(1)
		}
		defer closeFn()

		exporter, err := export.NewCSVExporter(export.CSVConfig{
			Logger:    log,
			Store:     s,
			OutputDir: exportDir,
			Days:      exportDays,
		})
		if err != nil {
			log.Error("Operation failed: new_csv_exporter", "error", err)
			os.Exit(1)
		}

		paths, err := exporter.Export(ctx)
		if err != nil {
			log.Error("Operation failed: export_csv", "error", err)
			os.Exit(1)
		}

		if bucket := getenv("SENTIMETRY_S3_BUCKET", ""); bucket != "" {
			uploader, err := export.NewS3Uploader(ctx, export.S3Config{
				Logger:          log,
				Region:          getenv("SENTIMETRY_S3_REGION", "us-east-1"),
				Bucket:          bucket,
				KeyPrefix:       getenv("SENTIMETRY_S3_KEY_PREFIX", "sentimetry"),
				AccessKeyID:     getenv("SENTIMETRY_S3_ACCESS_KEY_ID", ""),
				SecretAccessKey: getenv("SENTIMETRY_S3_SECRET_ACCESS_KEY", ""),
				EndpointURL:     getenv("SENTIMETRY_S3_ENDPOINT_URL", ""),
			})
			if err != nil {
				log.Error("Operation failed: new_s3_uploader", "error", err)
				os.Exit(1)
			}
			if err := uploader.Upload(ctx, paths); err != nil {
				log.Error("Operation failed: upload_csv_to_s3", "error", err)
				os.Exit(1)
			}
		}

		log.Info("Operation completed: export_csv", "files", len(paths))
	},
}

var exportClickHouseCmd = &cobra.Command{
	Use:   "clickhouse",
	Short: "Export rollups to a ClickHouse database",
	Run: func(cmd *cobra.Command, args []string) {
		log := newLogger(verbose)

		addr := clickhouseAddr
		if addr == "" {
			log.Error("Operation failed: export_clickhouse", "error", "clickhouse address is required (set --addr or SENTIMETRY_CLICKHOUSE_ADDR)")
			os.Exit(1)
		}
		log.Info("Operation started: export_clickhouse", "addr", addr)

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		s, closeFn, err := openStore(ctx, log, true)
		if err != nil {
			log.Error("Operation failed: open_store", "error", err)
			os.Exit(1)
		}
		defer closeFn()

		exporter, err := export.NewClickHouseExporter(ctx, export.ClickHouseConfig{
			Logger:   log,
			Store:    s,
			Addr:     addr,
			Database: getenv("SENTIMETRY_CLICKHOUSE_DATABASE", "sentimetry"),
			Username: getenv("SENTIMETRY_CLICKHOUSE_USERNAME", "default"),
			Password: getenv("SENTIMETRY_CLICKHOUSE_PASSWORD", ""),
			Days:     exportDays,
		})
		if err != nil {
			log.Error("Operation failed: new_clickhouse_exporter", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := exporter.Close(); err != nil {
				log.Warn("failed to close clickhouse exporter", "error", err)
			}
		}()

		if err := exporter.Export(ctx); err != nil {
			log.Error("Operation failed: export_clickhouse", "error", err)
			os.Exit(1)
		}
		log.Info("Operation completed: export_clickhouse")
	},
}

func serve() error {
	log := newLogger(verbose)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if enablePprof {
		go func() {
			log.Info("starting pprof server", "address", "localhost:6060")
			if err := http.ListenAndServe("localhost:6060", nil); err != nil {
				log.Error("failed to start pprof server", "error", err)
			}
		}()
	}

	metricsServerErrCh := make(chan error, 1)
	if metricsAddr != "" {
		metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)
		go func() {
			listener, err := net.Listen("tcp", metricsAddr)
			if err != nil {
				log.Error("failed to start prometheus metrics server listener", "error", err)
				metricsServerErrCh <- err
				return
			}
			log.Info("prometheus metrics server listening", "address", listener.Addr().String())
			http.Handle("/metrics", promhttp.Handler())
			if err := http.Serve(listener, nil); err != nil {
				log.Error("failed to start prometheus metrics server", "error", err)
				metricsServerErrCh <- err
			}
		}()
	}

	s, closeFn, err := openStore(ctx, log, false)
	if err != nil {
		return err
	}
	defer closeFn()

	pipeCfg := pipelineConfig(log, s)

	// Kafka run events are optional; without brokers runs are only recorded
	// in the warehouse.
	if brokers := splitCSV(getenv("SENTIMETRY_KAFKA_BROKERS", "")); len(brokers) > 0 {
		partitions, err := getenvInt("SENTIMETRY_KAFKA_TOPIC_PARTITIONS", 1)
		if err != nil {
			return err
		}
		replication, err := getenvInt("SENTIMETRY_KAFKA_REPLICATION_FACTOR", 1)
		if err != nil {
			return err
		}
		publisher, err := notify.NewPublisher(ctx, &notify.Config{
			Logger:      log,
			Brokers:     brokers,
			Topic:       getenv("SENTIMETRY_KAFKA_TOPIC", "sentimetry.pipeline.runs"),
			AuthIAM:     getenvBool("SENTIMETRY_KAFKA_AUTH_IAM_ENABLED", false),
			Partitions:  partitions,
			Replication: replication,
		})
		if err != nil {
			return fmt.Errorf("failed to create run event publisher: %w", err)
		}
		defer publisher.Close()
		pipeCfg.Events = publisher
	}

	p, err := pipeline.New(pipeCfg)
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}
	p.Start(ctx)

	monCfg := monitor.Config{
		Logger: log,
		Clock:  clockwork.NewRealClock(),
		Store:  s,
	}
	if token := getenv("SENTIMETRY_SLACK_TOKEN", ""); token != "" {
		monCfg.Slack = slack.New(token)
		monCfg.Channel = getenv("SENTIMETRY_SLACK_CHANNEL", "")
	}
	mon, err := monitor.New(monCfg)
	if err != nil {
		return fmt.Errorf("failed to create monitor: %w", err)
	}
	mon.Start(ctx)

	apiSrv, err := api.New(api.Config{
		Logger:         log,
		Store:          s,
		Ready:          p,
		AllowedOrigins: splitCSV(corsOrigins),
	})
	if err != nil {
		return fmt.Errorf("failed to create api server: %w", err)
	}

	httpSrv := &http.Server{
		Addr:              listenAddr,
		Handler:           apiSrv.Router(),
		ReadHeaderTimeout: 30 * time.Second,
	}
	httpErrCh := make(chan error, 1)
	go func() {
		log.Info("http api listening", "address", listenAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			httpErrCh <- err
		}
	}()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Error("failed to shutdown http server", "error", err)
		}
	}()

	gatewayErrCh := make(chan error, 1)
	if pgAddr != "" {
		listener, err := net.Listen("tcp", pgAddr)
		if err != nil {
			return fmt.Errorf("failed to listen on postgres gateway address: %w", err)
		}
		gw, err := gateway.New(gateway.Config{
			Logger:   log,
			Store:    s,
			Listener: listener,
		})
		if err != nil {
			return fmt.Errorf("failed to create postgres gateway: %w", err)
		}
		go func() {
			gatewayErrCh <- gw.Run(ctx)
		}()
	}

	select {
	case <-ctx.Done():
		log.Info("serve: shutting down", "reason", ctx.Err())
		return nil
	case err := <-httpErrCh:
		log.Error("serve: http server error causing shutdown", "error", err)
		return err
	case err := <-gatewayErrCh:
		if err != nil {
			log.Error("serve: postgres gateway error causing shutdown", "error", err)
		}
		return err
	case err := <-metricsServerErrCh:
		log.Error("serve: metrics server error causing shutdown", "error", err)
		return err
	}
}

// openStore opens the warehouse and prepares the schema. DuckLake catalog and
// storage URIs take precedence over the local file path; read-only commands
// attach the lake read-only and skip schema bootstrap.
func openStore(ctx context.Context, log *slog.Logger, readOnly bool) (*store.Store, func(), error) {
	var (
		db  duck.DB
		err error
	)
	if duckLakeCatalogURI != "" && duckLakeStorageURI != "" {
		s3Config, cfgErr := duck.PrepareS3ConfigForStorageURI(ctx, log, duckLakeStorageURI)
		if cfgErr != nil {
			return nil, nil, cfgErr
		}
		log.Info("attaching ducklake", "catalog", duckLakeCatalog, "read_only", readOnly)
		db, err = duck.NewLake(ctx, log, duckLakeCatalog, duckLakeCatalogURI, duckLakeStorageURI, readOnly, s3Config)
	} else {
		db, err = duck.NewDB(ctx, dbPath, log)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open warehouse: %w", err)
	}
	closeFn := func() {
		if err := db.Close(); err != nil {
			log.Error("failed to close warehouse", "error", err)
		}
	}

	s, err := store.NewStore(store.StoreConfig{Logger: log, DB: db})
	if err != nil {
		closeFn()
		return nil, nil, fmt.Errorf("failed to create store: %w", err)
	}
	if !readOnly {
		if err := s.CreateTablesIfNotExists(); err != nil {
			closeFn()
			return nil, nil, fmt.Errorf("failed to create tables: %w", err)
		}
		if err := s.CreateOrReplaceViews(ctx); err != nil {
			closeFn()
			return nil, nil, fmt.Errorf("failed to create views: %w", err)
		}
	}
	return s, closeFn, nil
}

func pipelineConfig(log *slog.Logger, s *store.Store) pipeline.Config {
	return pipeline.Config{
		Logger:        log,
		Clock:         clockwork.NewRealClock(),
		Store:         s,
		Interval:      interval,
		Lookback:      lookback,
		Workers:       workers,
		LikeThreshold: likeThreshold,
		Languages:     splitCSV(languagesCSV),
		SkipRetweets:  skipRetweets,
	}
}

func renderResults(results []pipeline.PartitionResult) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetHeader([]string{"Date", "Status", "Raw", "Processed", "Malformed", "Filtered", "Duration"})
	for _, r := range results {
		status := r.Status
		if r.Err != nil {
			status = fmt.Sprintf("%s (%v)", r.Status, r.Err)
		}
		table.Append([]string{
			r.Date.Format(time.DateOnly),
			status,
			strconv.FormatInt(r.RawCount, 10),
			strconv.FormatInt(r.ProcessedCount, 10),
			strconv.FormatInt(r.MalformedCount, 10),
			strconv.FormatInt(r.FilteredCount, 10),
			r.Duration.Round(time.Millisecond).String(),
		})
	}
	table.Render()
}

func renderDailyTrends(trends []store.DailyTrend) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetHeader([]string{"Date", "Label", "Tweets", "Avg Polarity", "Likes", "Retweets", "Category"})
	for _, t := range trends {
		table.Append([]string{
			t.Date.Format(time.DateOnly),
			t.SentimentLabel,
			strconv.FormatInt(t.TweetCount, 10),
			fmt.Sprintf("%.4f", t.AvgPolarity),
			strconv.FormatInt(t.TotalLikes, 10),
			strconv.FormatInt(t.TotalRetweets, 10),
			t.SentimentCategory,
		})
	}
	table.Render()
}

func renderHourlyTrends(trends []store.HourlyTrend) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetHeader([]string{"Date", "Hour", "Positive", "Negative", "Neutral", "Total"})
	for _, t := range trends {
		table.Append([]string{
			t.Date.Format(time.DateOnly),
			strconv.Itoa(t.Hour),
			strconv.FormatInt(t.PositiveCount, 10),
			strconv.FormatInt(t.NegativeCount, 10),
			strconv.FormatInt(t.NeutralCount, 10),
			strconv.FormatInt(t.TotalCount, 10),
		})
	}
	table.Render()
}

func renderSummary(summary *store.Summary) {
	fmt.Printf("Total processed tweets: %d\n", summary.TotalProcessed)
	if summary.LatestDate.IsZero() {
		fmt.Println("No partitions processed yet")
		return
	}
	fmt.Printf("Latest partition:       %s\n", summary.LatestDate.Format(time.DateOnly))
	fmt.Printf("Last day avg polarity:  %.4f\n", summary.LastDayAvgPolarity)
	for _, label := range []string{"positive", "negative", "neutral"} {
		if count, ok := summary.LastDayCounts[label]; ok {
			fmt.Printf("Last day %-9s      %d\n", label+":", count)
		}
	}
}

func newLogger(verbose bool) *slog.Logger {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level: logLevel,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				t := a.Value.Time().UTC()
				a.Value = slog.StringValue(formatRFC3339Millis(t))
			}
			if s, ok := a.Value.Any().(string); ok && s == "" {
				return slog.Attr{}
			}
			return a
		},
	}))
}

func formatRFC3339Millis(t time.Time) string {
	t = t.UTC()
	base := t.Format("2006-01-02T15:04:05")
	ms := t.Nanosecond() / 1_000_000
	return fmt.Sprintf("%s.%03dZ", base, ms)
}

func getenv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvInt(key string, def int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", key, v, err)
	}
	return i, nil
}

func getenvInt64(key string, def int64) int64 {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return i
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable verbose (debug) logging")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", getenv("SENTIMETRY_DB_PATH", defaultDBPath), "path to the local DuckDB warehouse file (env: SENTIMETRY_DB_PATH)")
	rootCmd.PersistentFlags().StringVar(&duckLakeCatalog, "ducklake-catalog-name", getenv("SENTIMETRY_DUCKLAKE_CATALOG_NAME", defaultCatalogName), "DuckLake catalog name (env: SENTIMETRY_DUCKLAKE_CATALOG_NAME)")
	rootCmd.PersistentFlags().StringVar(&duckLakeCatalogURI, "ducklake-catalog-uri", getenv("SENTIMETRY_DUCKLAKE_CATALOG_URI", ""), "DuckLake catalog URI; with a storage URI this replaces --db (env: SENTIMETRY_DUCKLAKE_CATALOG_URI)")
	rootCmd.PersistentFlags().StringVar(&duckLakeStorageURI, "ducklake-storage-uri", getenv("SENTIMETRY_DUCKLAKE_STORAGE_URI", ""), "DuckLake storage URI (env: SENTIMETRY_DUCKLAKE_STORAGE_URI)")

	for _, cmd := range []*cobra.Command{runCmd, processCmd, serveCmd} {
		cmd.Flags().DurationVar(&lookback, "lookback", defaultLookback, "how far back to look for stale partitions")
		cmd.Flags().IntVar(&workers, "workers", 0, "partition worker count (default: number of CPUs)")
		cmd.Flags().Int64Var(&likeThreshold, "like-threshold", getenvInt64("SENTIMETRY_LIKE_THRESHOLD", defaultLikeThreshold), "minimum likes for the high-engagement rollup (env: SENTIMETRY_LIKE_THRESHOLD)")
		cmd.Flags().StringVar(&languagesCSV, "languages", getenv("SENTIMETRY_LANGUAGES", ""), "comma-separated language allow-list, empty keeps all (env: SENTIMETRY_LANGUAGES)")
		cmd.Flags().BoolVar(&skipRetweets, "skip-retweets", getenvBool("SENTIMETRY_SKIP_RETWEETS", false), "drop retweets before classification (env: SENTIMETRY_SKIP_RETWEETS)")
	}

	processCmd.Flags().StringSliceVar(&processDates, "date", nil, "partition date to process (YYYY-MM-DD, repeatable)")

	trendsCmd.Flags().IntVar(&trendDays, "days", defaultTrendDays, "number of recent days to show")
	trendsCmd.Flags().StringVar(&trendDate, "date", "", "show hourly trends for one date (YYYY-MM-DD)")

	serveCmd.Flags().DurationVar(&interval, "interval", defaultInterval, "scheduler cycle interval")
	serveCmd.Flags().StringVar(&listenAddr, "listen-addr", getenv("SENTIMETRY_LISTEN_ADDR", defaultListenAddr), "HTTP API listen address (env: SENTIMETRY_LISTEN_ADDR)")
	serveCmd.Flags().StringVar(&metricsAddr, "metrics-addr", getenv("SENTIMETRY_METRICS_ADDR", defaultMetricsAddr), "prometheus metrics listen address, empty disables (env: SENTIMETRY_METRICS_ADDR)")
	serveCmd.Flags().StringVar(&pgAddr, "pg-listen-addr", getenv("SENTIMETRY_PG_LISTEN_ADDR", ""), "postgres wire protocol listen address, empty disables (env: SENTIMETRY_PG_LISTEN_ADDR)")
	serveCmd.Flags().StringVar(&corsOrigins, "cors-origins", getenv("SENTIMETRY_CORS_ORIGINS", ""), "comma-separated allowed CORS origins (env: SENTIMETRY_CORS_ORIGINS)")
	serveCmd.Flags().BoolVar(&enablePprof, "enable-pprof", false, "enable pprof server")

	for _, cmd := range []*cobra.Command{exportCSVCmd, exportClickHouseCmd} {
		cmd.Flags().IntVar(&exportDays, "days", 0, "limit the export to the most recent days, 0 exports everything")
	}
	exportCSVCmd.Flags().StringVar(&exportDir, "output-dir", getenv("SENTIMETRY_EXPORT_DIR", defaultExportDir), "directory for CSV files (env: SENTIMETRY_EXPORT_DIR)")
	exportClickHouseCmd.Flags().StringVar(&clickhouseAddr, "addr", getenv("SENTIMETRY_CLICKHOUSE_ADDR", ""), "clickhouse address host:port (env: SENTIMETRY_CLICKHOUSE_ADDR)")

	cobra.EnableCommandSorting = false

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(processCmd)
	rootCmd.AddCommand(trendsCmd)
	rootCmd.AddCommand(summaryCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(exportCmd)

	exportCmd.AddCommand(exportCSVCmd)
	exportCmd.AddCommand(exportClickHouseCmd)
}

func main() {
	// A missing .env file is fine; it only exists in local development.
	_ = godotenv.Load()

	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
