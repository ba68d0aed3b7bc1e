package main

import (
	"errors"
	"flag"
	"fmt"
	"syscall"

	"golang.org/x/term"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate COMMAND [ARGS] - run a goose command (up, up-by-one, up-to, down, down-to, redo, reset, status, version, create, fix)")
	fmt.Println("  adduser -name NAME -username USERNAME -email EMAIL [-admin] - create or update a user")
	fmt.Println("  resetpassword -username USERNAME|EMAIL - reset user's password")
	fmt.Println("  addcourse -title TITLE [-price PRICE] [-description TEXT] [-inactive] - create a course")
	fmt.Println("  addmodule -course COURSE_ID -title TITLE -type TYPE -order N [-duration MINUTES] [-preview] [-video URL] [-text TEXT] - add a module to a course")
	fmt.Println("  unenroll -username USERNAME|EMAIL -course COURSE_ID - delete an enrollment and its progress")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := flag.NewFlagSet("adduser", flag.ExitOnError)
	addUserName := addUserCmd.String("name", "", "The user's full name.")
	addUserUname := addUserCmd.String("username", "", "The user's username.")
	addUserEmail := addUserCmd.String("email", "", "The user's email.")
	addUserAdmin := addUserCmd.Bool("admin", false, "Grant every role to the user.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ExitOnError)
	resetPasswordUname := resetPasswordCmd.String("username", "", "The user's username or email. The password will be prompted next.")

	addCourseCmd := flag.NewFlagSet("addcourse", flag.ExitOnError)
	addCourseTitle := addCourseCmd.String("title", "", "The course title.")
	addCoursePrice := addCourseCmd.String("price", "", "The course price, e.g. 1999.00. Free when empty or zero.")
	addCourseDesc := addCourseCmd.String("description", "", "The course description.")
	addCourseInactive := addCourseCmd.Bool("inactive", false, "Hide the course from learners.")

	addModuleCmd := flag.NewFlagSet("addmodule", flag.ExitOnError)
	addModuleCourse := addModuleCmd.String("course", "", "The ID of the course.")
	addModuleTitle := addModuleCmd.String("title", "", "The module title.")
	addModuleType := addModuleCmd.String("type", "", "One of: video, text, pdf, quiz.")
	addModuleOrder := addModuleCmd.Int("order", 0, "The position of the module in the course, starting at 1.")
	addModuleDuration := addModuleCmd.Int("duration", 0, "The module duration in minutes.")
	addModulePreview := addModuleCmd.Bool("preview", false, "Let non-enrolled users view the module.")
	addModuleVideo := addModuleCmd.String("video", "", "The video URL.")
	addModuleText := addModuleCmd.String("text", "", "The text content.")

	unenrollCmd := flag.NewFlagSet("unenroll", flag.ExitOnError)
	unenrollUname := unenrollCmd.String("username", "", "The user's username or email.")
	unenrollCourse := unenrollCmd.String("course", "", "The ID of the course.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addUserName == "" || (*addUserUname == "" && *addUserEmail == "") {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			addUserCmd.Usage()
			return errHelp
		}
		return cli.addUser(*addUserName, *addUserUname, *addUserEmail, pwd, *addUserAdmin)
	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordUname == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		return cli.resetPassword(*resetPasswordUname, pwd)
	case "addcourse":
		if err := addCourseCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addCourseTitle == "" {
			addCourseCmd.Usage()
			return errHelp
		}
		return cli.addCourse(*addCourseTitle, *addCourseDesc, *addCoursePrice, !*addCourseInactive)
	case "addmodule":
		if err := addModuleCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addModuleCourse == "" || *addModuleTitle == "" || *addModuleType == "" {
			addModuleCmd.Usage()
			return errHelp
		}
		return cli.addModule(newModuleArgs{
			courseID: *addModuleCourse,
			title:    *addModuleTitle,
			typ:      *addModuleType,
			order:    *addModuleOrder,
			duration: *addModuleDuration,
			preview:  *addModulePreview,
			videoURL: *addModuleVideo,
			text:     *addModuleText,
		})
	case "unenroll":
		if err := unenrollCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *unenrollUname == "" || *unenrollCourse == "" {
			unenrollCmd.Usage()
			return errHelp
		}
		return cli.unenroll(*unenrollUname, *unenrollCourse)
	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) promptPassword() (string, error) {
	fmt.Print("Enter password:")
	pwd, err := readPasswordFunc(syscall.Stdin)
	fmt.Println()
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}
