package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/deprenotify/internal/config"
	"github.com/hitoshi/deprenotify/internal/database"
	"github.com/hitoshi/deprenotify/internal/digest"
	"github.com/hitoshi/deprenotify/internal/dispatch"
	"github.com/hitoshi/deprenotify/internal/email"
	"github.com/hitoshi/deprenotify/internal/handler"
	"github.com/hitoshi/deprenotify/internal/logger"
	"github.com/hitoshi/deprenotify/internal/metrics"
	"github.com/hitoshi/deprenotify/internal/model"
	"github.com/hitoshi/deprenotify/internal/repository"
	"github.com/hitoshi/deprenotify/internal/runlock"
	"github.com/hitoshi/deprenotify/internal/security"
	"github.com/hitoshi/deprenotify/internal/worker/cleanup"
	"github.com/hitoshi/deprenotify/internal/worker/notify"
)

const (
	dbPingTimeout    = 10 * time.Second
	shutdownTimeout  = 30 * time.Second
	defaultOpsPort   = "8080"
	healthcheckLimit = 5 * time.Second
)

// Init はアプリケーションの初期化を行う。
// .envと環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. .env の読み込み（存在しなければ何もしない）
	dotEnvErr := config.LoadDotEnv()

	// 2. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, logger.ParseLevel(os.Getenv("LOG_LEVEL")))
	if dotEnvErr != nil {
		return nil, model.NewConfigError("load .env", dotEnvErr)
	}

	// 3. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, model.NewConfigError("load config", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("OPS_PORT")
		if port == "" {
			port = defaultOpsPort
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("email_transport", cfg.EmailTransport),
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	switch cmd {
	case CommandRun:
		return runOnce(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runWorker(cfg)
	}
}

// runWorker は常駐ワーカーモードで起動する。
// RUN_INTERVAL間隔で通知ジョブと通知レコードのクリーンアップを実行し、
// OPS_PORTで /health と /metrics を公開する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runWorker(cfg *config.Config) error {
	logger := slog.Default()

	// 1. DB接続
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	logger.Info("database connection established (worker)")

	// 2. メトリクス
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(reg)

	// 3. 通知ジョブとクリーンアップジョブ
	job, closeJob, err := buildJob(cfg, db, collector, logger)
	if err != nil {
		return err
	}
	defer closeJob()

	cleanupJob := cleanup.NewCleanupJob(db, collector, logger, cfg.NotificationRetentionDays)
	scheduler := notify.NewScheduler(job, logger, cleanupJob)

	// 4. 運用エンドポイント
	server := &http.Server{
		Addr: ":" + cfg.OpsPort,
		Handler: handler.NewOpsRouter(&handler.RouterDeps{
			HealthChecker: db,
			Gatherer:      reg,
			Logger:        logger,
		}),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("ops server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("ops server listen error", slog.String("error", err.Error()))
		}
	}()

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		logger.Info("shutting down worker...")
		cancel()
	}()

	logger.Info("worker starting",
		slog.Duration("run_interval", cfg.RunInterval),
		slog.Bool("run_on_startup", cfg.RunOnStartup),
		slog.Int("retention_days", cleanupJob.RetentionDays()),
		slog.Bool("run_lock", cfg.RunLockRedisURL != ""),
	)

	// スケジューラをメインgoroutineで実行（ブロッキング）
	scheduler.Start(ctx, cfg.RunInterval, cfg.RunOnStartup)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("ops server shutdown failed: %w", err)
	}

	logger.Info("worker stopped gracefully")
	return nil
}

// runOnce は通知ジョブとクリーンアップを1回だけ実行して終了する。
// 外部スケジューラから起動されるため、ジョブの致命的エラーはそのまま返して終了コードに反映する。
func runOnce(cfg *config.Config) error {
	logger := slog.Default()

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	job, closeJob, err := buildJob(cfg, db, metrics.NopCollector{}, logger)
	if err != nil {
		return err
	}
	defer closeJob()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	report, err := job.Run(ctx)
	if err != nil {
		return fmt.Errorf("notification run failed: %w", err)
	}
	if report.Locked {
		return nil
	}

	cleanupJob := cleanup.NewCleanupJob(db, metrics.NopCollector{}, logger, cfg.NotificationRetentionDays)
	if err := cleanupJob.Run(ctx); err != nil {
		return fmt.Errorf("notification cleanup failed: %w", err)
	}

	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("version", uint64(version)),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: healthcheckLimit}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, model.NewDataAccessError("open database", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), dbPingTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, model.NewDataAccessError("connect to database", err)
	}
	return db, nil
}

// buildJob は設定から通知ジョブの依存関係を組み立てる。
// 返却するclose関数は実行ロック用のRedis接続などを解放する。
func buildJob(cfg *config.Config, db *sql.DB, m metrics.MetricsCollector, logger *slog.Logger) (*notify.Job, func() error, error) {
	sender, err := newSender(cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	renderer, err := digest.NewRenderer(digest.Options{
		Title:      cfg.DigestTitle,
		PortalName: cfg.PortalName,
	})
	if err != nil {
		return nil, nil, model.NewConfigError("digest renderer", err)
	}

	messages := digest.NewMessageBuilder(security.NewTextSanitizer())
	dispatcher := dispatch.NewDispatcher(sender, messages, m, logger, dispatch.Options{
		From:          cfg.SenderAddress,
		RatePerSecond: cfg.EmailRatePerSecond,
	})

	locker, closeLocker, err := newLocker(cfg)
	if err != nil {
		return nil, nil, err
	}

	store := repository.NewPostgresStore(db)
	job := notify.NewJob(store, renderer, dispatcher, locker, m, logger, nil)
	return job, closeLocker, nil
}

// newSender はEMAIL_TRANSPORTに応じたメール送信クライアントを生成する。
func newSender(cfg *config.Config, logger *slog.Logger) (email.Sender, error) {
	switch cfg.EmailTransport {
	case config.TransportSMTP:
		return email.NewSMTPSender(email.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
		}), nil

	case config.TransportSES:
		sender, err := email.NewSESSender(email.SESConfig{
			Region:          cfg.AWSRegion,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
			Endpoint:        cfg.SESEndpoint,
		})
		if err != nil {
			return nil, model.NewConfigError("ses sender", err)
		}
		return sender, nil

	case config.TransportACS:
		guard := security.NewEndpointGuard()
		endpoint, _, err := email.ParseConnectionString(cfg.ACSConnectionString)
		if err != nil {
			return nil, model.NewConfigError("parse ACS_CONNECTION_STRING", err)
		}
		if err := guard.ValidateEndpoint(endpoint.String()); err != nil {
			return nil, model.NewConfigError("validate ACS endpoint", err)
		}

		sender, err := email.NewACSSender(
			cfg.ACSConnectionString,
			guard.NewSafeClient(cfg.EmailSendTimeout),
			logger,
			email.ACSOptions{PollInterval: cfg.ACSPollInterval, Timeout: cfg.EmailSendTimeout},
		)
		if err != nil {
			return nil, model.NewConfigError("acs sender", err)
		}
		return sender, nil

	default:
		return nil, model.NewConfigError("email sender", fmt.Errorf("unsupported transport %q", cfg.EmailTransport))
	}
}

// newLocker はRUN_LOCK_REDIS_URLが設定されていればRedisの実行ロックを返す。
// 未設定の場合はロックを取らない。
func newLocker(cfg *config.Config) (runlock.Locker, func() error, error) {
	if cfg.RunLockRedisURL == "" {
		return runlock.NopLocker{}, func() error { return nil }, nil
	}

	client, err := runlock.NewRedisClient(cfg.RunLockRedisURL)
	if err != nil {
		return nil, nil, model.NewConfigError("run lock", err)
	}
	return runlock.NewRedisLocker(client, runlock.DefaultKey, cfg.RunLockTTL), client.Close, nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	u.RawQuery = ""
	return u.Redacted()
}
