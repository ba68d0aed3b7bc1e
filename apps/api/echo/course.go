package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/elimu/core/catalog"
	"github.com/trezcool/elimu/core/enrollment"
)

type courseApi struct {
	catalogSvc    catalog.Service
	enrollmentSvc enrollment.Service
	validate      *validator.Validate
}

func registerCourseAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	learner echo.MiddlewareFunc,
	catalogSvc catalog.Service,
	enrollmentSvc enrollment.Service,
	validate *validator.Validate,
) {
	api := courseApi{catalogSvc: catalogSvc, enrollmentSvc: enrollmentSvc, validate: validate}

	cg := g.Group("/courses")

	// un-authed endpoints
	cg.GET("", api.query)
	cg.GET("/:id", api.retrieve)

	// admin endpoints
	cg.POST("", api.create, jwt, adminMiddleware())
	cg.POST("/:id/modules", api.addModule, jwt, adminMiddleware())

	g.GET("/modules/:id", api.retrieveModule, learner)
}

// Handlers

func (api *courseApi) query(ctx echo.Context) error {
	filter := new(catalog.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return errors.Wrap(err, "binding to QueryFilter")
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	courses, err := api.catalogSvc.ListCourses(ctx.Request().Context(), *filter, ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying courses")
	}
	if courses == nil {
		courses = []catalog.Course{}
	}
	return ctx.JSON(http.StatusOK, courses)
}

func (api *courseApi) retrieve(ctx echo.Context) error {
	rctx := ctx.Request().Context()
	course, err := api.catalogSvc.GetActiveCourse(rctx, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding course")
	}
	modules, err := api.catalogSvc.ListModules(rctx, course.ID)
	if err != nil {
		return errors.Wrap(err, "listing modules")
	}

	outlines := make([]ModuleOutline, 0, len(modules))
	for _, mod := range modules {
		outlines = append(outlines, newModuleOutline(mod))
	}
	return ctx.JSON(http.StatusOK, CourseDetail{Course: course, IsFree: course.IsFree(), Modules: outlines})
}

// retrieveModule returns a module with its content, to enrolled users or for preview modules.
func (api *courseApi) retrieveModule(ctx echo.Context) error {
	userID, err := getContextUserID(ctx)
	if err != nil {
		return err
	}

	rctx := ctx.Request().Context()
	mod, err := api.catalogSvc.GetModule(rctx, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding module")
	}
	if _, err = api.catalogSvc.GetActiveCourse(rctx, mod.CourseID); err != nil {
		return errors.Wrap(err, "finding course")
	}
	if !mod.IsPreview {
		if _, err = api.enrollmentSvc.Get(rctx, userID, mod.CourseID); err != nil {
			return errors.Wrap(err, "checking enrollment")
		}
	}
	return ctx.JSON(http.StatusOK, mod)
}

func (api *courseApi) create(ctx echo.Context) error {
	userID, err := getContextUserID(ctx)
	if err != nil {
		return err
	}

	var data catalog.NewCourse
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCourse")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}
	data.CreatedBy = userID

	course, err := api.catalogSvc.CreateCourse(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating course")
	}
	return ctx.JSON(http.StatusCreated, course)
}

func (api *courseApi) addModule(ctx echo.Context) error {
	var data catalog.NewModule
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewModule")
	}
	data.CourseID = ctx.Param("id")
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	mod, err := api.catalogSvc.AddModule(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "adding module")
	}
	return ctx.JSON(http.StatusCreated, mod)
}

type (
	// ModuleOutline is a Module without its content.
	ModuleOutline struct {
		ID              string             `json:"id"`
		Title           string             `json:"title"`
		Type            catalog.ModuleType `json:"module_type"`
		Order           int                `json:"order"`
		DurationMinutes int                `json:"duration_minutes"`
		IsPreview       bool               `json:"is_preview"`
	}

	CourseDetail struct {
		catalog.Course
		IsFree  bool            `json:"is_free"`
		Modules []ModuleOutline `json:"modules"`
	}
)

func newModuleOutline(mod catalog.Module) ModuleOutline {
	return ModuleOutline{
		ID:              mod.ID,
		Title:           mod.Title,
		Type:            mod.Type,
		Order:           mod.Order,
		DurationMinutes: mod.DurationMinutes,
		IsPreview:       mod.IsPreview,
	}
}
