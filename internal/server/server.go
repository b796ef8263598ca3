package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/go-playground/validator"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/OFFIS-RIT/netunion/internal/queue"
	mid "github.com/OFFIS-RIT/netunion/internal/server/middleware"
	"github.com/OFFIS-RIT/netunion/internal/storage"
	"github.com/OFFIS-RIT/netunion/internal/util"
	"github.com/OFFIS-RIT/netunion/pkg/logger"
	pgxstore "github.com/OFFIS-RIT/netunion/pkg/store/pgx"
)

type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i any) error {
	if err := cv.validator.Struct(i); err != nil {
		return err
	}
	return nil
}

// NewEcho builds the HTTP server for app with middleware and routes
// registered.
func NewEcho(app *mid.App) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = &CustomValidator{validator: validator.New()}

	e.Use(mid.AppContextMiddleware(app))
	e.Use(middleware.CORS())
	e.Use(middleware.RequestLogger())
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("1M"))

	RegisterRoutes(e)
	return e
}

func Init() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbURL := util.GetEnv("DATABASE_URL")
	if err := pgxstore.Migrate(dbURL, util.GetEnvString("MIGRATIONS_PATH", "migrations")); err != nil {
		logger.Fatal("Failed to migrate database", "err", err)
	}

	var kf jwt.Keyfunc
	if authURL := util.GetEnv("AUTH_URL"); authURL != "" {
		k, err := keyfunc.NewDefault([]string{authURL + "/jwks"})
		if err != nil {
			logger.Fatal("Failed to load jwks keys", "err", err)
		}
		kf = k.Keyfunc
	} else {
		logger.Warn("AUTH_URL not set, only the master API key is accepted")
	}

	conn, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		logger.Fatal("Failed to connect to database", "err", err)
	}
	defer conn.Close()

	que, err := queue.Init(ctx)
	if err != nil {
		logger.Fatal("Failed to connect to queue", "err", err)
	}
	defer que.Close()
	ch, err := que.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	if err := queue.SetupQueues(ch, []string{queue.RunQueue}); err != nil {
		logger.Fatal("Failed to set up queues", "err", err)
	}

	s3Client, err := storage.NewS3Client(ctx)
	if err != nil {
		logger.Fatal("Failed to create S3 client", "err", err)
	}

	app := &mid.App{
		Runs:           pgxstore.NewRunDBStorageWithConnection(conn),
		Queue:          queue.ChannelPublisher{Ch: ch},
		Artifacts:      storage.NewArtifactStore(s3Client, util.GetEnvString("AWS_BUCKET", "netunion")),
		Keyfunc:        kf,
		MasterAPIKey:   util.GetEnv("MASTER_API_KEY"),
		MasterUserID:   int64(util.GetEnvInt("MASTER_USER_ID", 0)),
		MasterUserRole: util.GetEnvString("MASTER_USER_ROLE", "admin"),
	}

	e := NewEcho(app)

	go func() {
		port := util.GetEnvString("PORT", "8080")
		logger.Info("Starting server", "port", port)
		if err := e.Start(":" + port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed shutting down server", "err", err)
		}
	}()

	<-ctx.Done()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Error("Failed to shutdown server", "err", err)
	}
}
