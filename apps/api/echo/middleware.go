package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/eagleeye/core/tracker"
)

// sessionUserMiddleware only lets through tokens of the user signed in on the coordinator.
func sessionUserMiddleware(coord *tracker.Coordinator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if sess := coord.Session(); sess != nil && sess.UserID == claims.Subject {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}
