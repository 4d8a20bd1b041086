package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/asistencia/core/attendance"
)

type classroomApi struct {
	baseApi
}

func registerClassroomAPI(g *echo.Group, api classroomApi) {
	cg := g.Group("/classrooms/:id", rolesMiddleware(attendance.RoleTeacher, attendance.RoleAdmin))
	cg.GET("/roster", api.roster)
	cg.POST("/attendance", api.confirm)
}

func (api *classroomApi) roster(ctx echo.Context) error {
	day, err := bindDate(ctx, "date", api.svc.Today())
	if err != nil {
		return err
	}
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}

	roster, err := api.svc.GetPreloadedRoster(ctx.Request().Context(), actor, ctx.Param("id"), day, ctx.QueryParam("session"))
	if err != nil {
		return errors.Wrap(err, "getting preloaded roster")
	}
	return ctx.JSON(http.StatusOK, roster)
}

func (api *classroomApi) confirm(ctx echo.Context) error {
	var data attendance.Confirmation
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Confirmation")
	}
	data.ClassroomID = ctx.Param("id")
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}

	res, err := api.svc.ConfirmBatch(ctx.Request().Context(), actor, data)
	if err != nil {
		return errors.Wrap(err, "confirming attendance")
	}
	return ctx.JSON(http.StatusOK, res)
}
