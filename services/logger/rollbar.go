package logsvc

import (
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"

	"github.com/trezcool/elimu/core"
	"github.com/trezcool/elimu/core/user"
)

type Fields = map[string]interface{}

// RollbarLogger prints to a standard logger and reports to Rollbar when enabled.
// Args may be an error, Fields (sent as Rollbar extras) or the user.User the report is about.
type RollbarLogger struct {
	std    *log.Logger
	debug  bool
	fields Fields
}

var _ core.Logger = (*RollbarLogger)(nil)

func NewRollbarLogger(std *log.Logger, conf *core.Config) *RollbarLogger {
	rollbar.SetToken(conf.RollbarToken)
	rollbar.SetEnvironment(conf.Env)
	rollbar.SetServerHost(conf.Server.Host)
	rollbar.SetCodeVersion(conf.Build)
	rollbar.SetStackTracer(errors.StackTracer)
	rollbar.SetEnabled(conf.RollbarToken != "" && !conf.Debug)
	return &RollbarLogger{std: std, debug: conf.Debug}
}

func (l *RollbarLogger) Enable(enabled bool) {
	rollbar.SetEnabled(enabled)
}

// With returns a logger that attaches fields to every entry.
func (l *RollbarLogger) With(fields Fields) *RollbarLogger {
	merged := make(Fields, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &RollbarLogger{std: l.std, debug: l.debug, fields: merged}
}

type entry struct {
	msg    string
	usr    *user.User
	fields Fields
	rest   []interface{}
}

func (l *RollbarLogger) entry(msg string, args []interface{}) entry {
	e := entry{msg: msg, fields: make(Fields, len(l.fields))}
	for k, v := range l.fields {
		e.fields[k] = v
	}
	for _, arg := range args {
		switch a := arg.(type) {
		case user.User:
			if e.usr == nil { // the first one is the subject
				usr := a
				e.usr = &usr
			}
		case Fields:
			for k, v := range a {
				e.fields[k] = v
			}
		default:
			e.rest = append(e.rest, arg)
		}
	}
	return e
}

func (e entry) report(send func(...interface{})) {
	if e.usr != nil {
		rollbar.SetPerson(e.usr.ID, e.usr.Username, e.usr.Email)
	} else {
		rollbar.ClearPerson()
	}
	args := make([]interface{}, 0, len(e.rest)+2)
	args = append(args, e.msg)
	args = append(args, e.rest...)
	if len(e.fields) > 0 {
		args = append(args, e.fields)
	}
	send(args...)
}

func (e entry) String() string {
	var b strings.Builder
	b.WriteString(e.msg)

	keys := make([]string, 0, len(e.fields))
	for k := range e.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, e.fields[k])
	}
	if e.usr != nil {
		fmt.Fprintf(&b, " user=%s(%s)", e.usr.ID, e.usr.Username)
	}
	for _, arg := range e.rest {
		if err, ok := arg.(error); ok {
			fmt.Fprintf(&b, "\n  %+v", err)
		}
	}
	return b.String()
}

func (l *RollbarLogger) Debug(msg string, args ...interface{}) {
	if !l.debug {
		return
	}
	e := l.entry(msg, args)
	e.report(rollbar.Debug)
	l.std.Printf("DEBUG: %s", e)
}

func (l *RollbarLogger) Info(msg string, args ...interface{}) {
	e := l.entry(msg, args)
	e.report(rollbar.Info)
	l.std.Printf("INFO: %s", e)
}

func (l *RollbarLogger) Warn(msg string, args ...interface{}) {
	e := l.entry(msg, args)
	e.report(rollbar.Warning)
	l.std.Printf("WARN: %s", e)
}

func (l *RollbarLogger) Error(msg string, args ...interface{}) {
	e := l.entry(msg, args)
	e.report(rollbar.Error)
	l.std.Printf("ERROR: %s", e)
}

func (l *RollbarLogger) Fatal(msg string, args ...interface{}) {
	e := l.entry(msg, args)
	e.report(rollbar.Critical)
	rollbar.Wait()
	l.std.Fatalf("FATAL: %s", e)
}
