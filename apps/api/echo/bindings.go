package echoapi

import (
	"github.com/labstack/echo/v4"

	"github.com/trezcool/elimu/core"
)

const orderingParam = "ordering"

// Ordering binds the ?ordering=-price,title query parameter of list endpoints.
type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	ord.Orderings = core.ParseOrdering(ctx.QueryParam(orderingParam))
}
