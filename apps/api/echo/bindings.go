package echoapi

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/asistencia/core"
	"github.com/trezcool/asistencia/core/attendance"
)

var orderingParam = "ordering"

// Ordering binds `?ordering=field,-other`: a leading "-" sorts descending.
type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return
	}
	for _, field := range strings.Split(val, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// bindDate reads the `name` query param as a YYYY-MM-DD date, defaulting to `fallback`.
func bindDate(ctx echo.Context, name string, fallback attendance.Date) (attendance.Date, error) {
	s := ctx.QueryParam(name)
	if s == "" {
		return fallback, nil
	}
	d, err := attendance.ParseDate(s)
	if err != nil {
		return attendance.Date{}, core.NewValidationError(nil, core.FieldError{Field: name, Error: "date must be of form YYYY-MM-DD"})
	}
	return d, nil
}
