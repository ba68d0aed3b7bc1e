package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/elimu/core/catalog"
)

func (cli *commandLine) addCourse(title, description, price string, active bool) error {
	nc := catalog.NewCourse{
		Title:       title,
		Description: description,
		Type:        catalog.CourseFree,
		IsActive:    &active,
	}
	if price != "" {
		amount, err := decimal.NewFromString(price)
		if err != nil {
			return errors.Wrapf(err, "parsing price %q", price)
		}
		nc.Price = amount
		if !amount.IsZero() {
			nc.Type = catalog.CoursePaid
		}
	}
	if err := nc.Validate(cli.validate); err != nil {
		return err
	}

	course, err := cli.catalogSvc.CreateCourse(context.Background(), nc)
	if err != nil {
		return err
	}
	fmt.Printf("course %q created: %s\n", course.Title, course.ID)
	return nil
}

type newModuleArgs struct {
	courseID string
	title    string
	typ      string
	order    int
	duration int
	preview  bool
	videoURL string
	text     string
}

func (cli *commandLine) addModule(args newModuleArgs) error {
	nm := catalog.NewModule{
		CourseID:        args.courseID,
		Title:           args.title,
		Type:            catalog.ModuleType(args.typ),
		Order:           args.order,
		DurationMinutes: args.duration,
		IsPreview:       args.preview,
		VideoURL:        args.videoURL,
		TextContent:     args.text,
	}
	if err := nm.Validate(cli.validate); err != nil {
		return err
	}

	mod, err := cli.catalogSvc.AddModule(context.Background(), nm)
	if err != nil {
		return err
	}
	fmt.Printf("module %q added at position %d: %s\n", mod.Title, mod.Order, mod.ID)
	return nil
}
