package echoapi

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/eagleeye/core/tracker"
)

type dataApi struct {
	coord    *tracker.Coordinator
	migrator *tracker.Migrator
}

func registerDataAPI(g *echo.Group, jwt echo.MiddlewareFunc, coord *tracker.Coordinator, migrator *tracker.Migrator) {
	api := dataApi{
		coord:    coord,
		migrator: migrator,
	}

	g.GET("/export", api.export)

	// authed endpoints: the token must belong to the signed-in user
	cg := g.Group("/cloud", jwt, sessionUserMiddleware(coord))
	cg.POST("/migrate", api.migrate)
	cg.DELETE("", api.clearCloud)
}

// Handlers

// export downloads the local records of the device.
func (api *dataApi) export(ctx echo.Context) error {
	res := api.migrator.Export(ctx.Request().Context())
	if !res.Success {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, res.Message)
	}

	ctx.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", tracker.ExportFilename))
	return ctx.Blob(http.StatusOK, echo.MIMEApplicationJSONCharsetUTF8, res.Data)
}

// migrate copies the local records of the device to the signed-in user's cloud storage.
func (api *dataApi) migrate(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	res := api.migrator.Migrate(reqCtx, api.coord.Session())
	if !res.Success {
		return ctx.JSON(http.StatusUnprocessableEntity, res)
	}
	if res.ClassesImported > 0 || res.AssignmentsImported > 0 {
		// the sync error reports a failed reload
		_ = api.coord.Reload(reqCtx)
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *dataApi) clearCloud(ctx echo.Context) error {
	if err := requireConfirmation(ctx); err != nil {
		return err
	}

	reqCtx := ctx.Request().Context()
	res := api.migrator.ClearCloud(reqCtx, api.coord.Session())
	if !res.Success {
		return ctx.JSON(http.StatusBadGateway, res)
	}
	_ = api.coord.Reload(reqCtx)
	return ctx.JSON(http.StatusOK, res)
}
