package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sandesh-mail/sandesh/config"
	"github.com/sandesh-mail/sandesh/db"
	"github.com/sandesh-mail/sandesh/logger"
	"github.com/sandesh-mail/sandesh/pkg/ratelimit"
	"github.com/sandesh-mail/sandesh/server/delivery"
	"github.com/sandesh-mail/sandesh/server/smtp"
)

func main() {
	cfg := config.NewDefaultConfig()

	// Flags override values from the config file if set. Their defaults
	// come from the initial cfg for consistent -help messages.
	configPath := flag.String("config", "config.toml", "Path to TOML configuration file")

	fNamespace := flag.String("namespace", cfg.Namespace, "Bootstrap mail namespace (overrides config)")

	fDbHost := flag.String("dbhost", cfg.Database.Host, "Database host (overrides config)")
	fDbPort := flag.String("dbport", cfg.Database.Port, "Database port (overrides config)")
	fDbUser := flag.String("dbuser", cfg.Database.User, "Database user (overrides config)")
	fDbPassword := flag.String("dbpassword", cfg.Database.Password, "Database password (overrides config)")
	fDbName := flag.String("dbname", cfg.Database.Name, "Database name (overrides config)")
	fDbLogQueries := flag.Bool("dblogqueries", cfg.Database.LogQueries, "Log all database queries (overrides config)")

	fDebug := flag.Bool("debug", cfg.Servers.Debug, "Print all commands and responses (overrides config)")
	fStartSMTP := flag.Bool("smtp", cfg.Servers.SMTP.Start, "Start the SMTP listener (overrides config)")
	fSMTPAddr := flag.String("smtpaddr", cfg.Servers.SMTP.Addr, "SMTP listener address (overrides config)")
	fSMTPMaxSize := flag.String("smtpmaxsize", cfg.Servers.SMTP.MaxMessageSize, "Maximum message size (overrides config)")
	fStartMetrics := flag.Bool("metrics", cfg.Servers.Metrics.Start, "Start the metrics listener (overrides config)")
	fMetricsAddr := flag.String("metricsaddr", cfg.Servers.Metrics.Addr, "Metrics listener address (overrides config)")

	fOutboundAddr := flag.String("outboundaddr", cfg.Outbound.Addr, "Outbound smarthost address (overrides config)")

	fLogOutput := flag.String("logoutput", cfg.Logging.Output, "Log output: 'stdout', 'stderr', 'syslog' or a file path (overrides config)")
	fLogLevel := flag.String("loglevel", cfg.Logging.Level, "Log level: debug, info, warn, error (overrides config)")

	flag.Parse()

	var err error
	cfg, err = config.Load(*configPath)
	if err != nil {
		logger.Fatal("failed to load configuration", "path", *configPath, "error", err)
	}

	if isFlagSet("namespace") {
		cfg.Namespace = *fNamespace
	}
	if isFlagSet("dbhost") {
		cfg.Database.Host = *fDbHost
	}
	if isFlagSet("dbport") {
		cfg.Database.Port = *fDbPort
	}
	if isFlagSet("dbuser") {
		cfg.Database.User = *fDbUser
	}
	if isFlagSet("dbpassword") {
		cfg.Database.Password = *fDbPassword
	}
	if isFlagSet("dbname") {
		cfg.Database.Name = *fDbName
	}
	if isFlagSet("dblogqueries") {
		cfg.Database.LogQueries = *fDbLogQueries
	}
	if isFlagSet("debug") {
		cfg.Servers.Debug = *fDebug
	}
	if isFlagSet("smtp") {
		cfg.Servers.SMTP.Start = *fStartSMTP
	}
	if isFlagSet("smtpaddr") {
		cfg.Servers.SMTP.Addr = *fSMTPAddr
	}
	if isFlagSet("smtpmaxsize") {
		cfg.Servers.SMTP.MaxMessageSize = *fSMTPMaxSize
	}
	if isFlagSet("metrics") {
		cfg.Servers.Metrics.Start = *fStartMetrics
	}
	if isFlagSet("metricsaddr") {
		cfg.Servers.Metrics.Addr = *fMetricsAddr
	}
	if isFlagSet("outboundaddr") {
		cfg.Outbound.Addr = *fOutboundAddr
	}
	if isFlagSet("logoutput") {
		cfg.Logging.Output = *fLogOutput
	}
	if isFlagSet("loglevel") {
		cfg.Logging.Level = *fLogLevel
	}

	logFile, err := logger.Initialize(cfg.Logging)
	if err != nil {
		logger.Fatal("failed to initialize logging", "error", err)
	}
	if logFile != nil {
		defer logFile.Close()
	}

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-signalChan
		logger.Info("received signal, shutting down", "signal", sig.String())
		cancel()
	}()

	database, err := db.NewDatabase(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("failed to connect to the database", "error", err)
	}
	defer database.Close()
	database.StartPoolMetrics(ctx)

	limiter := ratelimit.NewLimiter()
	router := delivery.NewRouter(database)

	errChan := make(chan error, 1)

	if cfg.Servers.SMTP.Start {
		maxMessageSize, _ := cfg.Servers.SMTP.GetMaxMessageSize()
		mailWindow, _ := cfg.Servers.SMTP.GetMailRateWindow()
		backend := smtp.New(ctx, cfg.Servers.SMTP.Hostname, cfg.Servers.SMTP.Addr, router, limiter, smtp.Options{
			Debug:          cfg.Servers.Debug,
			MaxMessageSize: maxMessageSize,
			MaxRecipients:  cfg.Servers.SMTP.MaxRecipients,
			MailRateLimit:  cfg.Servers.SMTP.MailRateLimit,
			MailRateWindow: mailWindow,
		})
		go func() {
			errChan <- backend.ListenAndServe()
		}()
		go func() {
			<-ctx.Done()
			backend.Close()
		}()
	}

	if cfg.Servers.Metrics.Start {
		go startMetricsServer(ctx, cfg.Servers.Metrics.Addr, errChan)
	}

	select {
	case <-ctx.Done():
		logger.Info("shutdown complete")
	case err := <-errChan:
		if err != nil {
			logger.Fatal("server error", "error", err)
		}
	}
}

func startMetricsServer(ctx context.Context, addr string, errChan chan error) {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		errChan <- err
	}
}

func isFlagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}
