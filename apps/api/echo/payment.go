package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/elimu/core/payment"
)

type paymentApi struct {
	svc      payment.Service
	validate *validator.Validate
}

func registerPaymentAPI(g *echo.Group, learner echo.MiddlewareFunc, svc payment.Service, validate *validator.Validate) {
	api := paymentApi{svc: svc, validate: validate}

	g.POST("/courses/:id/checkout", api.checkout, learner)

	pg := g.Group("/payments", learner)
	pg.GET("", api.query)
	pg.POST("/verify", api.verify)
}

// Handlers

func (api *paymentApi) checkout(ctx echo.Context) error {
	userID, err := getContextUserID(ctx)
	if err != nil {
		return err
	}

	co, err := api.svc.InitiateCheckout(ctx.Request().Context(), userID, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "initiating checkout")
	}
	return ctx.JSON(http.StatusCreated, co)
}

func (api *paymentApi) verify(ctx echo.Context) error {
	var data payment.Verification
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Verification")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	enr, err := api.svc.Verify(ctx.Request().Context(), data.OrderRef, data.PaymentRef, data.Signature)
	if err != nil {
		return errors.Wrap(err, "verifying payment")
	}
	return ctx.JSON(http.StatusOK, enr)
}

func (api *paymentApi) query(ctx echo.Context) error {
	userID, err := getContextUserID(ctx)
	if err != nil {
		return err
	}

	payments, err := api.svc.ListForUser(ctx.Request().Context(), userID)
	if err != nil {
		return errors.Wrap(err, "listing payments")
	}
	if payments == nil {
		payments = []payment.Payment{}
	}
	return ctx.JSON(http.StatusOK, payments)
}
