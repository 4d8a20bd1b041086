package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/asistencia/core"
	"github.com/trezcool/asistencia/core/attendance"
)

type withdrawalApi struct {
	baseApi
}

func registerWithdrawalAPI(g *echo.Group, api withdrawalApi) {
	wg := g.Group("/withdrawals")
	wg.POST("", api.create, rolesMiddleware(attendance.RoleTeacher, attendance.RoleAdmin))
	wg.GET("", api.query, rolesMiddleware(attendance.RoleTeacher, attendance.RoleAdmin))
	// titular guardians are told apart from the others by the service
	wg.POST("/:id/resolve", api.resolve, rolesMiddleware(attendance.RoleGuardian, attendance.RoleAdmin))
}

func (api *withdrawalApi) create(ctx echo.Context) error {
	var data attendance.NewWithdrawal
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewWithdrawal")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}

	req, err := api.svc.RequestWithdrawal(ctx.Request().Context(), actor, data)
	if err != nil {
		return errors.Wrap(err, "requesting withdrawal")
	}
	return ctx.JSON(http.StatusCreated, req)
}

func (api *withdrawalApi) query(ctx echo.Context) error {
	day, err := bindDate(ctx, "date", api.svc.Today())
	if err != nil {
		return err
	}
	state := attendance.WithdrawalState(ctx.QueryParam("state"))
	if state != "" && !state.Valid() {
		return core.NewValidationError(nil, core.FieldError{Field: "state", Error: "unknown withdrawal state"})
	}
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}

	reqs, err := api.svc.ListWithdrawals(ctx.Request().Context(), actor, day, state)
	if err != nil {
		return errors.Wrap(err, "listing withdrawals")
	}
	if reqs == nil {
		reqs = []attendance.WithdrawalRequest{}
	}
	return ctx.JSON(http.StatusOK, reqs)
}

func (api *withdrawalApi) resolve(ctx echo.Context) error {
	var data attendance.WithdrawalResolution
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to WithdrawalResolution")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}

	req, err := api.svc.ResolveWithdrawal(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "resolving withdrawal")
	}
	return ctx.JSON(http.StatusOK, req)
}
