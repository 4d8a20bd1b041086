package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/asistencia/core/attendance"
)

type studentApi struct {
	baseApi
}

func registerStudentAPI(g *echo.Group, api studentApi) {
	sg := g.Group("/students/:id")
	sg.GET("/status", api.status)
	sg.GET("/history", api.history, rolesMiddleware(attendance.RoleTeacher, attendance.RoleAdmin))
}

func (api *studentApi) status(ctx echo.Context) error {
	day, err := bindDate(ctx, "date", api.svc.Today())
	if err != nil {
		return err
	}
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}

	sd, err := api.svc.StudentStatus(ctx.Request().Context(), actor, ctx.Param("id"), day)
	if err != nil {
		return errors.Wrap(err, "resolving student status")
	}
	return ctx.JSON(http.StatusOK, sd)
}

func (api *studentApi) history(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	changes, err := api.svc.StudentHistory(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting student history")
	}
	if changes == nil {
		changes = []attendance.StatusChange{}
	}
	return ctx.JSON(http.StatusOK, changes)
}
