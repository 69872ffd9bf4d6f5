package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/eagleeye/core/tracker"
)

type syncApi struct {
	coord     *tracker.Coordinator
	secretKey string
	validate  *validator.Validate
}

func registerSyncAPI(g *echo.Group, coord *tracker.Coordinator, secretKey string, validate *validator.Validate) {
	api := syncApi{
		coord:     coord,
		secretKey: secretKey,
		validate:  validate,
	}

	sg := g.Group("/session")
	sg.POST("", api.signIn)
	sg.DELETE("", api.signOut)

	yg := g.Group("/sync")
	yg.GET("", api.state)
	yg.POST("/reload", api.reload)
	yg.DELETE("/error", api.dismissError)

	g.POST("/local/repair", api.repairLocal)
}

// Handlers

// signIn switches the coordinator to the cloud data of the token's user.
// A failed initial load still signs in; the failure shows up as the sync error.
func (api *syncApi) signIn(ctx echo.Context) error {
	var data SessionRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SessionRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	claims, err := ParseToken(data.AccessToken, api.secretKey)
	if err != nil {
		return errBadToken
	}
	err = api.coord.SignIn(ctx.Request().Context(), claims.Session())
	var syncErr *tracker.SyncError
	if err != nil && !errors.As(err, &syncErr) {
		return errors.Wrap(err, "signing in")
	}
	return ctx.JSON(http.StatusOK, api.coord.State())
}

func (api *syncApi) signOut(ctx echo.Context) error {
	api.coord.SignOut()
	return ctx.JSON(http.StatusOK, api.coord.State())
}

func (api *syncApi) state(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, api.coord.State())
}

func (api *syncApi) reload(ctx echo.Context) error {
	if err := api.coord.Reload(ctx.Request().Context()); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, api.coord.State())
}

// repairLocal backs up the corrupted local records and resets them.
func (api *syncApi) repairLocal(ctx echo.Context) error {
	if err := requireConfirmation(ctx); err != nil {
		return err
	}
	backups, err := api.coord.RepairLocal(ctx.Request().Context())
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{"backups": backups})
}

func (api *syncApi) dismissError(ctx echo.Context) error {
	api.coord.DismissError()
	return ctx.NoContent(http.StatusNoContent)
}
