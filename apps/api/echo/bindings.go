package echoapi

import (
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/trezcool/eagleeye/core"
	"github.com/trezcool/eagleeye/core/tracker"
)

const (
	confirmParam        = "confirm"
	confirmRequiredText = "destructive action, repeat with confirm=true"
)

type (
	SessionRequest struct {
		AccessToken string `json:"access_token" validate:"required"`
	}

	StatusRequest struct {
		Status tracker.Status `json:"status" validate:"required,editablestatus"`
	}
)

func (r *SessionRequest) Validate(validate *validator.Validate) error {
	r.AccessToken = core.CleanString(r.AccessToken)
	return validate.Struct(r)
}

func (r *StatusRequest) Validate(validate *validator.Validate) error {
	return validate.Struct(r)
}

// requireConfirmation fails unless the request carries confirm=true.
func requireConfirmation(ctx echo.Context) error {
	if ok, _ := strconv.ParseBool(ctx.QueryParam(confirmParam)); ok {
		return nil
	}
	return core.NewValidationError(nil, core.FieldError{Field: confirmParam, Error: confirmRequiredText})
}
