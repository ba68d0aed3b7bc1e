package logsvc_test

import (
	"bytes"
	"log"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/trezcool/elimu/core/user"
	logsvc "github.com/trezcool/elimu/services/logger"
	"github.com/trezcool/elimu/testutil"
)

func newLogger(debug bool) (*logsvc.RollbarLogger, *bytes.Buffer) {
	var buf bytes.Buffer
	conf := testutil.NewConfig()
	conf.Debug = debug
	logger := logsvc.NewRollbarLogger(log.New(&buf, "", 0), conf)
	logger.Enable(false)
	return logger, &buf
}

func TestRollbarLogger(t *testing.T) {
	usr := user.User{ID: "u-1", Username: "amani"}

	tests := []struct {
		name  string
		debug bool
		log   func(l *logsvc.RollbarLogger)
		want  string
	}{
		{
			name: "plain",
			log:  func(l *logsvc.RollbarLogger) { l.Info("server started") },
			want: "INFO: server started\n",
		},
		{
			name: "debug suppressed",
			log:  func(l *logsvc.RollbarLogger) { l.Debug("noisy") },
			want: "",
		},
		{
			name:  "debug enabled",
			debug: true,
			log:   func(l *logsvc.RollbarLogger) { l.Debug("noisy") },
			want:  "DEBUG: noisy\n",
		},
		{
			name: "fields and user",
			log: func(l *logsvc.RollbarLogger) {
				l.Warn("signature rejected", logsvc.Fields{"order_ref": "order_1", "amount": 199900}, usr)
			},
			want: "WARN: signature rejected amount=199900 order_ref=order_1 user=u-1(amani)\n",
		},
		{
			name: "scoped",
			log: func(l *logsvc.RollbarLogger) {
				l.With(logsvc.Fields{"component": "payment"}).Info("checkout", map[string]interface{}{"course_id": "c-1"})
			},
			want: "INFO: checkout component=payment course_id=c-1\n",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			logger, buf := newLogger(tc.debug)
			tc.log(logger)
			assert.Equal(t, tc.want, buf.String())
		})
	}
}

func TestRollbarLogger_Error(t *testing.T) {
	logger, buf := newLogger(false)
	scoped := logger.With(logsvc.Fields{"component": "database"})
	scoped.Error("query failed", errors.New("connection refused"))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "ERROR: query failed component=database\n  connection refused"), out)

	buf.Reset()
	logger.Info("unscoped")
	assert.Equal(t, "INFO: unscoped\n", buf.String())
}
