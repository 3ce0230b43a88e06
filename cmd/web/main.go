package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/alexedwards/scs/sqlite3store"
	"github.com/alexedwards/scs/v2"
	"github.com/joho/godotenv"
	"github.com/myrjola/coachline/internal/ai"
	"github.com/myrjola/coachline/internal/cache"
	"github.com/myrjola/coachline/internal/coach"
	"github.com/myrjola/coachline/internal/discovery"
	"github.com/myrjola/coachline/internal/envstruct"
	"github.com/myrjola/coachline/internal/errors"
	"github.com/myrjola/coachline/internal/gateway"
	"github.com/myrjola/coachline/internal/logging"
	"github.com/myrjola/coachline/internal/pprofserver"
	"github.com/myrjola/coachline/internal/repositories"
	"github.com/myrjola/coachline/internal/sqlite"
	"github.com/myrjola/coachline/internal/storage/local"
)

type application struct {
	logger         *slog.Logger
	sessionManager *scs.SessionManager
	conversations  *repositories.ConversationRepository
	messages       *repositories.MessageRepository
	profiles       *repositories.ProfileRepository
	deviceRecords  *repositories.DeviceRecordRepository
	catalogue      *discovery.Catalogue
	responses      *cache.Cache
	collaborator   coach.Collaborator
	// registry is composed once the listen address, and with it the default remote base URL, is known.
	registry       *coach.Registry
	remoteBaseURL  string
	requestTimeout time.Duration
	secureCookies  bool
}

type config struct {
	// Addr is the address to listen on. It's possible to choose the address dynamically with localhost:0.
	Addr string `env:"COACHLINE_ADDR" envDefault:"localhost:4000"`
	// SqliteURL is the URL to the SQLite database. You can use ":memory:" for an ephemeral in-memory database.
	SqliteURL string `env:"COACHLINE_SQLITE_URL" envDefault:"./coachline.sqlite3"`
	// RemoteBaseURL is the base URL of the remote store API. Empty means this server's own store endpoints.
	RemoteBaseURL string `env:"COACHLINE_REMOTE_BASE_URL" envDefault:""`
	OpenAIAPIKey  string `env:"OPENAI_API_KEY" envDefault:""`
	// OpenAIBaseURL points the collaborator at any OpenAI compatible API.
	OpenAIBaseURL string `env:"OPENAI_BASE_URL" envDefault:""`
	OpenAIModel   string `env:"COACHLINE_OPENAI_MODEL" envDefault:""`
	// PhasesFile overrides the embedded discovery questionnaire.
	PhasesFile     string        `env:"COACHLINE_PHASES_FILE" envDefault:""`
	CacheTTL       time.Duration `env:"COACHLINE_CACHE_TTL" envDefault:"30m"`
	CacheMaxSize   int           `env:"COACHLINE_CACHE_MAX_SIZE" envDefault:"100"`
	RequestTimeout time.Duration `env:"COACHLINE_REQUEST_TIMEOUT" envDefault:"60s"`
	SessionTTL     time.Duration `env:"COACHLINE_SESSION_TTL" envDefault:"720h"`
	SecureCookies  bool          `env:"COACHLINE_SECURE_COOKIES" envDefault:"true"`
	// PprofAddr enables the profiler on a loopback address such as localhost:6060.
	PprofAddr string `env:"COACHLINE_PPROF_ADDR" envDefault:""`
}

func run(ctx context.Context, logger *slog.Logger, lookupEnv func(string) (string, bool)) error {
	var (
		cfg       config
		err       error
		db        *sqlite.Database
		catalogue *discovery.Catalogue
	)

	if err = envstruct.Populate(&cfg, lookupEnv); err != nil {
		return errors.Wrap(err, "populate config")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	pprofserver.Launch(ctx, cfg.PprofAddr, logger)

	if catalogue, err = loadCatalogue(cfg.PhasesFile); err != nil {
		return errors.Wrap(err, "load discovery catalogue", slog.String("file", cfg.PhasesFile))
	}

	if db, err = sqlite.NewDatabase(ctx, cfg.SqliteURL, logger); err != nil {
		return errors.Wrap(err, "open database", slog.String("url", cfg.SqliteURL))
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			logger.LogAttrs(context.WithoutCancel(ctx), slog.LevelError, "failed to close database",
				errors.SlogError(closeErr))
		}
	}()

	sessionStore := sqlite3store.NewWithCleanupInterval(db.ReadWrite.DB, 24*time.Hour) //nolint:mnd // daily
	defer sessionStore.StopCleanup()
	sessionManager := scs.New()
	sessionManager.Store = sessionStore
	sessionManager.Lifetime = cfg.SessionTTL
	sessionManager.Cookie.Secure = cfg.SecureCookies
	sessionManager.Cookie.SameSite = http.SameSiteLaxMode

	app := application{
		logger:         logger,
		sessionManager: sessionManager,
		conversations:  repositories.NewConversationRepository(db, logger),
		messages:       repositories.NewMessageRepository(db, logger),
		profiles:       repositories.NewProfileRepository(db, logger),
		deviceRecords:  repositories.NewDeviceRecordRepository(db, logger),
		catalogue:      catalogue,
		responses: cache.New(
			cache.WithMaxSize(cfg.CacheMaxSize),
			cache.WithTTL(cfg.CacheTTL),
			cache.WithLogger(logger),
		),
		collaborator:   ai.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel, nil, logger),
		registry:       nil,
		remoteBaseURL:  cfg.RemoteBaseURL,
		requestTimeout: cfg.RequestTimeout,
		secureCookies:  cfg.SecureCookies,
	}

	if err = app.configureAndStartServer(ctx, cfg.Addr); err != nil {
		return errors.Wrap(err, "start server")
	}

	return nil
}

func loadCatalogue(path string) (*discovery.Catalogue, error) {
	if path == "" {
		return discovery.DefaultCatalogue(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read phases file")
	}
	catalogue, err := discovery.ParseCatalogue(data)
	if err != nil {
		return nil, errors.Wrap(err, "parse phases file")
	}
	return catalogue, nil
}

// newRegistry composes the coach sessions. Remote backends reach the store API through the loopback HTTP
// client so that authenticated sessions exercise the same path as an external store.
func (app *application) newRegistry(remoteBaseURL string) *coach.Registry {
	httpClient := &http.Client{Timeout: app.requestTimeout} //nolint:exhaustruct // defaults are fine.
	deviceRecords := func(deviceID string) local.RecordStore {
		return app.deviceRecords.ForDevice(deviceID)
	}
	factory := gateway.NewFactory(remoteBaseURL, httpClient, deviceRecords, app.logger)
	return coach.NewRegistry(factory, app.catalogue, app.responses, app.collaborator, app.logger)
}

func main() {
	ctx := context.Background()
	loggerHandler := logging.NewContextHandler(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		AddSource:   true,
		Level:       slog.LevelDebug,
		ReplaceAttr: nil,
	}))
	logger := slog.New(loggerHandler)

	// A missing .env file is fine, the environment may already be configured.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.LogAttrs(ctx, slog.LevelError, "failure loading .env file", errors.SlogError(err))
		os.Exit(1)
	}

	if err := run(ctx, logger, os.LookupEnv); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "failure starting application", errors.SlogError(err))
		os.Exit(1)
	}
}
