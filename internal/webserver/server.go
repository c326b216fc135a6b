package webserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/pkg/errors"
	"github.com/talkincode/resilienced/config"
	"go.uber.org/zap"
)

const appCtxKey = "appctx"

// WebServer admin API, webhook and live endpoints on one echo instance
type WebServer struct {
	root    *echo.Echo
	addr    string
	timeout time.Duration
}

// NewEcho builds the echo instance with middleware and every registered
// API route. appCtx is handed to handlers through GetAppContext.
func NewEcho(appCtx interface{}) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Logger.SetLevel(log.OFF)
	e.Validator = NewValidator()
	e.JSONSerializer = JSONSerializer{}
	e.HTTPErrorHandler = httpErrorHandler

	e.Use(middleware.RequestID())
	e.Use(middleware.Recover())
	e.Use(ZapLogger())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set(appCtxKey, appCtx)
			return next(c)
		}
	})

	mountRoutes(e.Group(ApiPrefix))
	return e
}

func NewWebServer(appCtx interface{}, cfg config.WebConfig) *WebServer {
	timeout := time.Duration(cfg.ShutdownTimeout) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &WebServer{
		root:    NewEcho(appCtx),
		addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		timeout: timeout,
	}
}

// Echo exposes the root instance for endpoints outside ApiPrefix
func (s *WebServer) Echo() *echo.Echo {
	return s.root
}

// Start serves until Shutdown is called
func (s *WebServer) Start() error {
	zap.S().Infof("Starting web server at %s", s.addr)
	err := s.root.Start(s.addr)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "web server")
	}
	return nil
}

func (s *WebServer) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.root.Shutdown(ctx)
}

// GetAppContext returns the application context set by NewEcho
func GetAppContext(c echo.Context) interface{} {
	return c.Get(appCtxKey)
}

func httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code := http.StatusInternalServerError
	message := http.StatusText(code)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		message = fmt.Sprint(he.Message)
	} else {
		zap.L().Error("unhandled request error",
			zap.String("namespace", "webserver"),
			zap.String("path", c.Path()),
			zap.Error(err))
	}
	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}
	_ = c.JSON(code, map[string]interface{}{
		"error":   http.StatusText(code),
		"message": message,
	})
}
