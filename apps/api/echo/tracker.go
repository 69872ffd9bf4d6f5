package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/eagleeye/core/tracker"
)

type trackerApi struct {
	coord    *tracker.Coordinator
	validate *validator.Validate
}

func registerTrackerAPI(g *echo.Group, coord *tracker.Coordinator, validate *validator.Validate) {
	api := trackerApi{
		coord:    coord,
		validate: validate,
	}

	cg := g.Group("/classes")
	cg.GET("", api.queryClasses)
	cg.POST("", api.createClass)
	cg.PUT("/:id", api.updateClass)
	cg.DELETE("/:id", api.destroyClass)

	ag := g.Group("/assignments")
	ag.GET("", api.queryAssignments)
	ag.GET("/counts", api.counts)
	ag.POST("", api.createAssignment)
	ag.PUT("/:id", api.updateAssignment)
	ag.PATCH("/:id/status", api.setStatus)
	ag.DELETE("/:id", api.destroyAssignment)
}

// Class Handlers

func (api *trackerApi) queryClasses(ctx echo.Context) error {
	classes, err := api.coord.Classes(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying classes")
	}
	return ctx.JSON(http.StatusOK, classes)
}

func (api *trackerApi) createClass(ctx echo.Context) error {
	var data tracker.NewClass
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewClass")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	cls, err := api.coord.CreateClass(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating class")
	}
	return ctx.JSON(http.StatusCreated, cls)
}

func (api *trackerApi) updateClass(ctx echo.Context) error {
	var data tracker.UpdateClass
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateClass")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	if err := api.coord.UpdateClass(ctx.Request().Context(), ctx.Param("id"), data); err != nil {
		return errors.Wrap(err, "updating class")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// destroyClass also deletes the class' assignments.
func (api *trackerApi) destroyClass(ctx echo.Context) error {
	if err := requireConfirmation(ctx); err != nil {
		return err
	}
	if err := api.coord.DeleteClass(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting class")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Assignment Handlers

func (api *trackerApi) queryAssignments(ctx echo.Context) error {
	var filter tracker.Filter
	if err := ctx.Bind(&filter); err != nil {
		return errors.Wrap(err, "binding to Filter")
	}
	if err := filter.Validate(api.validate); err != nil {
		return err
	}

	assignments, err := api.coord.Visible(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying assignments")
	}
	return ctx.JSON(http.StatusOK, assignments)
}

func (api *trackerApi) counts(ctx echo.Context) error {
	counts, err := api.coord.Counts(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "counting assignments")
	}
	return ctx.JSON(http.StatusOK, counts)
}

func (api *trackerApi) createAssignment(ctx echo.Context) error {
	var data tracker.NewAssignment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAssignment")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	asg, err := api.coord.CreateAssignment(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating assignment")
	}
	return ctx.JSON(http.StatusCreated, asg)
}

func (api *trackerApi) updateAssignment(ctx echo.Context) error {
	var data tracker.UpdateAssignment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateAssignment")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	if data.Empty() {
		return ctx.NoContent(http.StatusNoContent)
	}

	if err := api.coord.UpdateAssignment(ctx.Request().Context(), ctx.Param("id"), data); err != nil {
		return errors.Wrap(err, "updating assignment")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *trackerApi) setStatus(ctx echo.Context) error {
	var data StatusRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to StatusRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	if err := api.coord.SetStatus(ctx.Request().Context(), ctx.Param("id"), data.Status); err != nil {
		return errors.Wrap(err, "setting assignment status")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *trackerApi) destroyAssignment(ctx echo.Context) error {
	if err := requireConfirmation(ctx); err != nil {
		return err
	}
	if err := api.coord.DeleteAssignment(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting assignment")
	}
	return ctx.NoContent(http.StatusNoContent)
}
