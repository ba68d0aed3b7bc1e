package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/elimu/core/catalog"
	"github.com/trezcool/elimu/core/enrollment"
)

type enrollmentApi struct {
	catalogSvc    catalog.Service
	enrollmentSvc enrollment.Service
}

func registerEnrollmentAPI(
	g *echo.Group,
	learner echo.MiddlewareFunc,
	catalogSvc catalog.Service,
	enrollmentSvc enrollment.Service,
) {
	api := enrollmentApi{catalogSvc: catalogSvc, enrollmentSvc: enrollmentSvc}

	// per-route middleware: a middleware group would also catch the public /courses routes
	g.POST("/courses/:id/enroll", api.enroll, learner)
	g.GET("/courses/:id/enrollment", api.retrieve, learner)
	g.POST("/courses/:id/finish", api.finish, learner)

	g.POST("/modules/:id/complete", api.completeModule, learner)
	g.GET("/enrollments", api.query, learner)
}

// Handlers

// enroll registers the current user in a free course. Paid courses go through checkout.
func (api *enrollmentApi) enroll(ctx echo.Context) error {
	userID, err := getContextUserID(ctx)
	if err != nil {
		return err
	}

	rctx := ctx.Request().Context()
	course, err := api.catalogSvc.GetActiveCourse(rctx, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding course")
	}
	if !course.IsFree() {
		return errPaymentRequired
	}

	enr, err := api.enrollmentSvc.Enroll(rctx, userID, course.ID)
	if err != nil {
		return errors.Wrap(err, "enrolling")
	}
	return ctx.JSON(http.StatusCreated, enr)
}

func (api *enrollmentApi) retrieve(ctx echo.Context) error {
	userID, err := getContextUserID(ctx)
	if err != nil {
		return err
	}

	rctx := ctx.Request().Context()
	courseID := ctx.Param("id")
	enr, err := api.enrollmentSvc.Get(rctx, userID, courseID)
	if err != nil {
		return errors.Wrap(err, "finding enrollment")
	}
	moduleIDs, err := api.enrollmentSvc.CompletedModules(rctx, userID, courseID)
	if err != nil {
		return errors.Wrap(err, "listing completed modules")
	}
	if moduleIDs == nil {
		moduleIDs = []string{}
	}
	return ctx.JSON(http.StatusOK, EnrollmentDetail{Enrollment: enr, CompletedModules: moduleIDs})
}

func (api *enrollmentApi) finish(ctx echo.Context) error {
	userID, err := getContextUserID(ctx)
	if err != nil {
		return err
	}

	enr, err := api.enrollmentSvc.Finish(ctx.Request().Context(), userID, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finishing course")
	}
	return ctx.JSON(http.StatusOK, enr)
}

func (api *enrollmentApi) completeModule(ctx echo.Context) error {
	userID, err := getContextUserID(ctx)
	if err != nil {
		return err
	}

	progress, err := api.enrollmentSvc.RecordModuleCompletion(ctx.Request().Context(), userID, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "completing module")
	}
	return ctx.JSON(http.StatusOK, ProgressResponse{Progress: progress})
}

func (api *enrollmentApi) query(ctx echo.Context) error {
	userID, err := getContextUserID(ctx)
	if err != nil {
		return err
	}

	enrs, err := api.enrollmentSvc.ListForUser(ctx.Request().Context(), userID)
	if err != nil {
		return errors.Wrap(err, "listing enrollments")
	}
	if enrs == nil {
		enrs = []enrollment.Enrollment{}
	}
	return ctx.JSON(http.StatusOK, enrs)
}

type (
	EnrollmentDetail struct {
		enrollment.Enrollment
		CompletedModules []string `json:"completed_modules"`
	}

	ProgressResponse struct {
		Progress int `json:"progress"`
	}
)
