package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/asistencia/core"
	"github.com/trezcool/asistencia/core/attendance"
)

type justificationApi struct {
	baseApi
}

func registerJustificationAPI(g *echo.Group, api justificationApi) {
	jg := g.Group("/justifications")
	jg.POST("", api.submit, rolesMiddleware(attendance.RoleGuardian, attendance.RoleTeacher, attendance.RoleAdmin))

	rg := jg.Group("", rolesMiddleware(attendance.RoleTeacher, attendance.RoleAdmin))
	rg.GET("", api.query)
	rg.POST("/:id/start-review", api.startReview)
	rg.POST("/:id/review", api.review)
}

func (api *justificationApi) submit(ctx echo.Context) error {
	var data attendance.NewJustification
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewJustification")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}

	req, err := api.svc.SubmitJustification(ctx.Request().Context(), actor, data)
	if err != nil {
		return errors.Wrap(err, "submitting justification")
	}
	return ctx.JSON(http.StatusCreated, req)
}

func (api *justificationApi) query(ctx echo.Context) error {
	state := attendance.JustificationState(ctx.QueryParam("state"))
	if state != "" && !state.Valid() {
		return core.NewValidationError(nil, core.FieldError{Field: "state", Error: "unknown justification state"})
	}
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}

	reqs, err := api.svc.ListJustifications(ctx.Request().Context(), actor, state)
	if err != nil {
		return errors.Wrap(err, "listing justifications")
	}
	if reqs == nil {
		reqs = []attendance.JustificationRequest{}
	}
	return ctx.JSON(http.StatusOK, reqs)
}

func (api *justificationApi) startReview(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	req, err := api.svc.StartReview(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "starting review")
	}
	return ctx.JSON(http.StatusOK, req)
}

func (api *justificationApi) review(ctx echo.Context) error {
	var data attendance.JustificationReview
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to JustificationReview")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}

	res, err := api.svc.ReviewJustification(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "reviewing justification")
	}
	return ctx.JSON(http.StatusOK, res)
}
