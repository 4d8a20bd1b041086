package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/asistencia/core/attendance"
)

// baseApi holds what every attendance handler needs.
type baseApi struct {
	svc      *attendance.Service
	validate *validator.Validate
}

type gateApi struct {
	baseApi
}

func registerGateAPI(g *echo.Group, api gateApi) {
	gg := g.Group("/gate")
	gg.POST("/events", api.register, rolesMiddleware(attendance.RoleGateStaff, attendance.RoleAdmin))
	gg.GET("/events", api.query, rolesMiddleware(attendance.RoleGateStaff, attendance.RoleTeacher, attendance.RoleAdmin))
	gg.POST("/close-day", api.closeDay, rolesMiddleware(attendance.RoleGateStaff, attendance.RoleAdmin))
}

func (api *gateApi) register(ctx echo.Context) error {
	var data attendance.GateScan
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to GateScan")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}

	res, err := api.svc.RegisterGateEvent(ctx.Request().Context(), actor, data)
	if err != nil {
		return errors.Wrap(err, "registering gate event")
	}
	code := http.StatusCreated
	if res.IsDuplicate() {
		code = http.StatusOK
	}
	return ctx.JSON(code, res)
}

func (api *gateApi) query(ctx echo.Context) error {
	day, err := bindDate(ctx, "date", api.svc.Today())
	if err != nil {
		return err
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}

	events, err := api.svc.QueryDay(ctx.Request().Context(), actor, day, ctx.QueryParam("classroom"), ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying gate events")
	}
	if events == nil {
		events = []attendance.GateEvent{}
	}
	return ctx.JSON(http.StatusOK, events)
}

type (
	CloseDayRequest struct {
		Date attendance.Date `json:"date"`
	}

	CloseDayResponse struct {
		Date     attendance.Date `json:"date"`
		Recorded int             `json:"recorded"`
	}
)

func (api *gateApi) closeDay(ctx echo.Context) error {
	var data CloseDayRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to CloseDayRequest")
	}
	if data.Date.IsZero() {
		data.Date = api.svc.Today()
	}
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}

	n, err := api.svc.CloseGateDay(ctx.Request().Context(), actor, data.Date)
	if err != nil {
		return errors.Wrap(err, "closing gate day")
	}
	return ctx.JSON(http.StatusOK, CloseDayResponse{Date: data.Date, Recorded: n})
}
