package middleware

import (
	"context"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/OFFIS-RIT/netunion/pkg/store"
)

type AppUser struct {
	UserID      int64
	Role        string
	Permissions []string
}

// Publisher enqueues a message on a named queue.
type Publisher interface {
	Publish(queueName string, data []byte) error
}

// Artifacts gives access to the exported files of runs.
type Artifacts interface {
	ListFilesWithPrefix(ctx context.Context, prefix string) ([]string, error)
	GenerateDownloadLink(ctx context.Context, key string) (string, error)
	DeleteFolder(ctx context.Context, prefix string) error
}

type App struct {
	Runs      store.RunStorage
	Queue     Publisher
	Artifacts Artifacts
	Keyfunc   jwt.Keyfunc

	MasterAPIKey   string
	MasterUserID   int64
	MasterUserRole string
}

type AppContext struct {
	echo.Context
	App  *App
	User *AppUser
}

func AppContextMiddleware(app *App) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			return next(&AppContext{Context: c, App: app})
		}
	}
}
