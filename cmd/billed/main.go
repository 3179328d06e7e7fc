package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"google.golang.org/api/option"

	"github.com/zombor/billed/internal/bill"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	_ = godotenv.Load()

	fs := ff.NewFlagSet("billed")
	var (
		port        = fs.IntLong("port", 5678, "HTTP server port")
		dbPath      = fs.StringLong("db", "billed.db", "Database file path")
		backend     = fs.StringLong("storage-backend", "local", "Receipt storage: 'local' or 'gcs'")
		storagePath = fs.StringLong("storage", "./receipts", "Storage directory path (local backend)")
		gcsBucket   = fs.StringLong("gcs-bucket", "", "Google Cloud Storage bucket (gcs backend)")
		gcsPrefix   = fs.StringLong("gcs-prefix", "receipts", "Object name prefix in the bucket (gcs backend)")
		gcsCreds    = fs.StringLong("gcs-credentials", "", "Service account key file (gcs backend, default: application default credentials)")
		publicURL   = fs.StringLong("public-url", "", "Public base URL of the server, used in receipt URLs (default http://localhost:<port>)")
		authUser    = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass    = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		_           = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("BILLED"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()

	// Initialize database
	slog.Info("Initializing database...", "path", *dbPath)
	db, err := bill.NewBoltDB(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Initialize storage based on backend
	var store bill.Storage
	switch *backend {
	case "local":
		slog.Info("Initializing local storage...", "path", *storagePath)
		store, err = bill.NewLocalStorage(*storagePath)
		if err != nil {
			slog.Error("Failed to initialize storage", "error", err)
			os.Exit(1)
		}
	case "gcs":
		if *gcsBucket == "" {
			slog.Error("GCS bucket is required. Set --gcs-bucket flag or BILLED_GCS_BUCKET environment variable")
			os.Exit(1)
		}
		slog.Info("Initializing GCS storage...", "bucket", *gcsBucket, "prefix", *gcsPrefix)
		var opts []option.ClientOption
		if *gcsCreds != "" {
			opts = append(opts, option.WithCredentialsFile(*gcsCreds))
		}
		gcs, err := bill.NewGCSStorage(ctx, *gcsBucket, *gcsPrefix, opts...)
		if err != nil {
			slog.Error("Failed to initialize GCS", "error", err)
			os.Exit(1)
		}
		defer gcs.Close()
		store = gcs
	default:
		slog.Error("Invalid storage backend", "backend", *backend, "valid", "local or gcs")
		os.Exit(1)
	}

	addr := fmt.Sprintf(":%d", *port)
	baseURL := *publicURL
	if baseURL == "" {
		baseURL = fmt.Sprintf("http://localhost%s", addr)
	}

	billService := bill.NewService(db, store, baseURL)

	basicAuth := bill.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := bill.NewServer(billService, basicAuth)

	// Start server in goroutine
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", baseURL, "version", version)
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Shutdown error", "error", err)
	}
}
