package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/BTreeMap/HandCoach/internal/api"
	"github.com/BTreeMap/HandCoach/internal/flow"
	"github.com/BTreeMap/HandCoach/internal/genai"
	"github.com/BTreeMap/HandCoach/internal/lockfile"
	"github.com/BTreeMap/HandCoach/internal/messaging"
	"github.com/BTreeMap/HandCoach/internal/store"
	"github.com/BTreeMap/HandCoach/internal/telegram"
	"github.com/BTreeMap/HandCoach/internal/twiliowhatsapp"
	"github.com/BTreeMap/HandCoach/internal/util"
	"github.com/BTreeMap/HandCoach/internal/whatsapp"
	"github.com/joho/godotenv"
)

// Default configuration constants
const (
	// DefaultStateDir holds the lock file and SQLite databases
	DefaultStateDir = "/var/lib/handcoach"
	// DefaultAppDBFileName is the audit store created in the state directory
	DefaultAppDBFileName = "handcoach.db"
	// DefaultWhatsAppDBFileName is the whatsmeow device store in the state directory
	DefaultWhatsAppDBFileName = "whatsmeow.db"
	// DefaultSessionIdleTTL evicts sessions untouched for this long
	DefaultSessionIdleTTL = 24 * time.Hour
)

// Transport names accepted by MESSAGING_TRANSPORT.
const (
	TransportTelegram = "telegram"
	TransportWhatsApp = "whatsapp"
	TransportTwilio   = "twilio"
)

func main() {
	// .env is loaded before the logger so it can set LOG_LEVEL
	envErr := godotenv.Load()
	initializeLogger(os.Getenv("LOG_LEVEL"))
	if envErr != nil {
		slog.Debug("failed to load .env file", "error", envErr)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := loadEnvironmentConfig()
	flags, err := parseCommandLineFlags(config, os.Args[1:])
	if err != nil {
		slog.Error("Invalid command line", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, flags); err != nil {
		slog.Error("HandCoach failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("HandCoach exited successfully")
}

// Config holds environment configuration
type Config struct {
	Transport         string
	StateDir          string
	DatabaseURL       string
	WhatsAppDSN       string
	MediaDir          string
	MediaBaseURL      string
	ScriptFile        string
	APIAddr           string
	APIJWTSecret      string
	OpenAIKey         string
	OpenAIModel       string
	OpenAIBaseURL     string
	TelegramToken     string
	TwilioWebhookURL  string
	CompletionTimeout time.Duration
	SessionIdleTTL    time.Duration
	MaxWorkers        int
}

// Flags holds the effective configuration after command line overrides.
type Flags struct {
	Config
	QROutput    string
	NumericCode bool
}

// initializeLogger installs a text slog handler on stdout at the given level.
func initializeLogger(level string) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(level)}))
	slog.SetDefault(logger)
}

// parseLogLevel maps LOG_LEVEL to a slog level; unknown values mean debug.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelDebug
	}
}

// loadEnvironmentConfig reads configuration from the environment, filling in defaults.
func loadEnvironmentConfig() Config {
	config := Config{
		Transport:         strings.ToLower(util.GetEnv("MESSAGING_TRANSPORT", TransportTelegram)),
		StateDir:          util.GetEnv("HANDCOACH_STATE_DIR", DefaultStateDir),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		WhatsAppDSN:       os.Getenv("WHATSAPP_DB_DSN"),
		MediaDir:          os.Getenv("MEDIA_DIR"),
		MediaBaseURL:      os.Getenv("MEDIA_BASE_URL"),
		ScriptFile:        os.Getenv("SCRIPT_FILE"),
		APIAddr:           os.Getenv("API_ADDR"),
		APIJWTSecret:      os.Getenv("API_JWT_SECRET"),
		OpenAIKey:         os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:       os.Getenv("OPENAI_MODEL"),
		OpenAIBaseURL:     os.Getenv("OPENAI_BASE_URL"),
		TelegramToken:     os.Getenv("TELEGRAM_BOT_TOKEN"),
		TwilioWebhookURL:  os.Getenv("TWILIO_WEBHOOK_URL"),
		CompletionTimeout: util.ParseDurationEnv("COMPLETION_TIMEOUT", messaging.DefaultCompletionTimeout),
		SessionIdleTTL:    util.ParseDurationEnv("SESSION_IDLE_TTL", DefaultSessionIdleTTL),
		MaxWorkers:        util.ParseIntEnv("DISPATCHER_MAX_WORKERS", messaging.DefaultMaxWorkers),
	}
	if !util.ParseBoolEnv("TWILIO_VALIDATE_SIGNATURE", true) {
		config.TwilioWebhookURL = ""
	}

	slog.Debug("environment variables loaded",
		"MESSAGING_TRANSPORT", config.Transport,
		"HANDCOACH_STATE_DIR", config.StateDir,
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"WHATSAPP_DB_DSN_SET", config.WhatsAppDSN != "",
		"MEDIA_DIR", config.MediaDir,
		"MEDIA_BASE_URL", config.MediaBaseURL,
		"SCRIPT_FILE", config.ScriptFile,
		"API_ADDR", config.APIAddr,
		"API_JWT_SECRET_SET", config.APIJWTSecret != "",
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"TELEGRAM_BOT_TOKEN_SET", config.TelegramToken != "",
		"COMPLETION_TIMEOUT", config.CompletionTimeout,
		"SESSION_IDLE_TTL", config.SessionIdleTTL)
	return config
}

// parseCommandLineFlags applies command line overrides on top of config and
// derives the database locations that default into the state directory.
func parseCommandLineFlags(config Config, args []string) (Flags, error) {
	f := Flags{Config: config}
	fs := flag.NewFlagSet("handcoach", flag.ContinueOnError)
	fs.StringVar(&f.Transport, "transport", config.Transport, "messaging transport: telegram, whatsapp or twilio (overrides $MESSAGING_TRANSPORT)")
	fs.StringVar(&f.StateDir, "state-dir", config.StateDir, "state directory for locks and SQLite data (overrides $HANDCOACH_STATE_DIR)")
	fs.StringVar(&f.DatabaseURL, "db-dsn", config.DatabaseURL, "audit store DSN, Postgres URL or SQLite path (overrides $DATABASE_URL)")
	fs.StringVar(&f.WhatsAppDSN, "whatsapp-db-dsn", config.WhatsAppDSN, "whatsmeow device store DSN (overrides $WHATSAPP_DB_DSN)")
	fs.StringVar(&f.MediaDir, "media-dir", config.MediaDir, "directory that relative script media paths resolve against (overrides $MEDIA_DIR)")
	fs.StringVar(&f.MediaBaseURL, "media-base-url", config.MediaBaseURL, "public URL of the /media/ route for Twilio (overrides $MEDIA_BASE_URL)")
	fs.StringVar(&f.ScriptFile, "script", config.ScriptFile, "JSON quiz script; built-in poker script when empty (overrides $SCRIPT_FILE)")
	fs.StringVar(&f.APIAddr, "api-addr", config.APIAddr, "admin API listen address (overrides $API_ADDR)")
	fs.StringVar(&f.OpenAIKey, "openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)")
	fs.StringVar(&f.OpenAIModel, "openai-model", config.OpenAIModel, "chat model (overrides $OPENAI_MODEL)")
	fs.DurationVar(&f.CompletionTimeout, "completion-timeout", config.CompletionTimeout, "coaching request timeout (overrides $COMPLETION_TIMEOUT)")
	fs.StringVar(&f.QROutput, "qr-output", "", "path to write the WhatsApp login QR code")
	fs.BoolVar(&f.NumericCode, "numeric-code", false, "use a numeric WhatsApp login code instead of a QR code")
	if err := fs.Parse(args); err != nil {
		return Flags{}, err
	}

	f.Transport = strings.ToLower(strings.TrimSpace(f.Transport))
	switch f.Transport {
	case TransportTelegram, TransportWhatsApp, TransportTwilio:
	default:
		return Flags{}, fmt.Errorf("unknown transport %q", f.Transport)
	}
	if f.DatabaseURL == "" {
		f.DatabaseURL = filepath.Join(f.StateDir, DefaultAppDBFileName)
	}
	if f.WhatsAppDSN == "" {
		f.WhatsAppDSN = "file:" + filepath.Join(f.StateDir, DefaultWhatsAppDBFileName) + "?_foreign_keys=on"
	}

	slog.Debug("flags parsed",
		"transport", f.Transport,
		"stateDir", f.StateDir,
		"dbDSN_type", store.DetectDSNType(f.DatabaseURL),
		"script", f.ScriptFile,
		"apiAddr", f.APIAddr,
		"completionTimeout", f.CompletionTimeout,
		"qrOutput", f.QROutput,
		"numeric", f.NumericCode)
	return f, nil
}

// loadScript returns the configured script with media resolved against the media directory.
func loadScript(f Flags) (*flow.Script, error) {
	script := flow.DefaultScript()
	if f.ScriptFile != "" {
		loaded, err := flow.LoadScript(f.ScriptFile)
		if err != nil {
			return nil, err
		}
		script = loaded
	}
	return script.WithMediaDir(f.MediaDir), nil
}

// buildGenAIOptions constructs completion client options
func buildGenAIOptions(f Flags) []genai.Option {
	var opts []genai.Option
	if f.OpenAIKey != "" {
		opts = append(opts, genai.WithAPIKey(f.OpenAIKey))
	}
	if f.OpenAIModel != "" {
		opts = append(opts, genai.WithModel(f.OpenAIModel))
	}
	if f.OpenAIBaseURL != "" {
		opts = append(opts, genai.WithBaseURL(f.OpenAIBaseURL))
	}
	return opts
}

// buildWhatsAppOptions constructs WhatsApp configuration options
func buildWhatsAppOptions(f Flags) []whatsapp.Option {
	opts := []whatsapp.Option{whatsapp.WithDBDSN(f.WhatsAppDSN)}
	if f.QROutput != "" {
		opts = append(opts, whatsapp.WithQRCodeOutput(f.QROutput))
	}
	if f.NumericCode {
		opts = append(opts, whatsapp.WithNumericCode())
	}
	return opts
}

// buildTwilioOptions maps media and webhook settings onto the Twilio service.
func buildTwilioOptions(f Flags, client *twiliowhatsapp.Client) []messaging.TwilioOption {
	var opts []messaging.TwilioOption
	if f.MediaBaseURL != "" {
		opts = append(opts, messaging.WithMediaBaseURL(f.MediaBaseURL, f.MediaDir))
	} else {
		slog.Warn("MEDIA_BASE_URL not set; Twilio media will be skipped")
	}
	if f.TwilioWebhookURL != "" {
		opts = append(opts, messaging.WithSignatureValidation(client, f.TwilioWebhookURL))
	} else {
		slog.Warn("TWILIO_WEBHOOK_URL not set; inbound webhook signatures are not validated")
	}
	return opts
}

// buildMessagingService creates the selected transport. The webhook handler is
// non-nil only for Twilio.
func buildMessagingService(f Flags) (messaging.Service, http.Handler, error) {
	switch f.Transport {
	case TransportWhatsApp:
		client, err := whatsapp.NewClient(buildWhatsAppOptions(f)...)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create WhatsApp client: %w", err)
		}
		return messaging.NewWhatsAppService(client), nil, nil
	case TransportTwilio:
		client, err := twiliowhatsapp.NewClient()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create Twilio client: %w", err)
		}
		svc := messaging.NewTwilioService(client, buildTwilioOptions(f, client)...)
		return svc, http.HandlerFunc(svc.TwilioWebhookHandler), nil
	default:
		client, err := telegram.NewClient(telegram.WithToken(f.TelegramToken))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create Telegram client: %w", err)
		}
		return messaging.NewTelegramService(client), nil, nil
	}
}

// shouldStartAPI reports whether the admin API is needed.
func shouldStartAPI(f Flags) bool {
	return f.APIAddr != "" || f.Transport == TransportTwilio
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(f Flags, webhook http.Handler) []api.Option {
	var opts []api.Option
	if f.APIAddr != "" {
		opts = append(opts, api.WithAddr(f.APIAddr))
	}
	if f.APIJWTSecret != "" {
		opts = append(opts, api.WithJWTSecret(f.APIJWTSecret))
	}
	if f.MediaDir != "" {
		opts = append(opts, api.WithMediaDir(f.MediaDir))
	}
	if webhook != nil {
		opts = append(opts, api.WithTwilioWebhook(webhook))
	}
	return opts
}

// run wires every component and blocks until ctx is cancelled.
func run(ctx context.Context, f Flags) error {
	lock, err := lockfile.Acquire(f.StateDir, f.Transport)
	if err != nil {
		return err
	}
	defer lock.Release()

	script, err := loadScript(f)
	if err != nil {
		return err
	}
	slog.Info("Quiz script loaded", "questions", len(script.Questions), "max_score", script.MaxScore(), "guided_fields", len(script.GuidedFields))

	completer, err := genai.NewClient(buildGenAIOptions(f)...)
	if err != nil {
		return fmt.Errorf("failed to create completion client: %w", err)
	}

	audit, err := store.New(f.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open audit store: %w", err)
	}
	defer func() {
		if err := audit.Close(); err != nil {
			slog.Warn("Failed to close audit store", "error", err)
		}
	}()

	msgService, webhook, err := buildMessagingService(f)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sessions := flow.NewInMemorySessionStore()
	if f.SessionIdleTTL > 0 {
		go sessions.RunEviction(runCtx, evictionInterval(f.SessionIdleTTL), f.SessionIdleTTL)
	}

	dispatcher := messaging.NewDispatcher(msgService, sessions, script, completer,
		messaging.WithAuditRecorder(audit),
		messaging.WithCompletionTimeout(f.CompletionTimeout),
		messaging.WithMaxWorkers(f.MaxWorkers))

	if err := msgService.Start(runCtx); err != nil {
		return fmt.Errorf("failed to start %s transport: %w", f.Transport, err)
	}
	dispatcher.Start(runCtx)

	// stays nil when the API is not started
	var apiErr chan error
	if shouldStartAPI(f) {
		apiErr = make(chan error, 1)
		server := api.NewServer(sessions, audit, buildAPIOptions(f, webhook)...)
		go func() { apiErr <- server.Run(runCtx) }()
	}

	slog.Info("HandCoach running", "transport", f.Transport, "api", apiErr != nil)
	var runErr error
	select {
	case <-ctx.Done():
		slog.Info("Shutdown signal received")
	case runErr = <-apiErr:
		apiErr = nil
		if runErr == nil {
			runErr = errors.New("api server stopped unexpectedly")
		}
	}

	cancel()
	if err := msgService.Stop(); err != nil {
		slog.Warn("Failed to stop messaging service", "error", err)
	}
	<-dispatcher.Done()
	dispatcher.Wait()
	if apiErr != nil {
		if err := <-apiErr; err != nil {
			slog.Warn("API server shutdown error", "error", err)
		}
	}
	return runErr
}

// evictionInterval sweeps a few times per TTL, at most once a minute.
func evictionInterval(ttl time.Duration) time.Duration {
	if iv := ttl / 4; iv > time.Minute {
		return iv
	}
	return time.Minute
}
