package server

import (
	"errors"
	"net/http"
	"path"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/blockadesystems/serve/internal/files"
)

const indexDocument = "index.html"

// indexFallback serves <path>/index.html in place of a 404 so client-side
// routed applications work without a file per route. One attempt is made;
// if the index is missing too, the original error is returned untouched.
func indexFallback(provider files.Provider, logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if err == nil || c.Response().Committed || !isNotFound(err) {
				return err
			}

			reqPath := c.Request().URL.Path
			indexPath := path.Join(reqPath, indexDocument)
			info, statErr := provider.Stat(indexPath)
			if statErr != nil || !info.Exists || info.IsDir {
				return err
			}
			f, openErr := provider.Open(indexPath)
			if openErr != nil {
				logger.Warn("failed to open fallback index", zap.String("path", indexPath), zap.Error(openErr))
				return err
			}
			defer f.Close()

			logger.Debug("serving fallback index", zap.String("path", reqPath), zap.String("index", indexPath))
			return c.Stream(http.StatusOK, echo.MIMETextHTML, f)
		}
	}
}

func isNotFound(err error) bool {
	var he *echo.HTTPError
	return errors.As(err, &he) && he.Code == http.StatusNotFound
}
