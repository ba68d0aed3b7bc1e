package core_test

import (
	"net/mail"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/elimu/core"
	"github.com/trezcool/elimu/testutil"
)

func TestEmailMessage_Render(t *testing.T) {
	logger := &testutil.Logger{}
	core.ParseEmailTemplates(logger, true)
	require.Empty(t, logger.Errors())

	receiptData := map[string]interface{}{
		"Name":        "Awe",
		"CourseID":    "course-1",
		"CourseTitle": "Go <in> Depth",
		"Amount":      "1999.00",
		"Currency":    "INR",
		"OrderRef":    "ord_1",
		"PaymentRef":  "pay_1",
		"Date":        "15 Jan 2024 09:30 UTC",
	}

	tests := []struct {
		name        string
		msg         core.EmailMessage
		wantErr     bool
		wantText    []string
		wantHTML    []string
		wantNoHTML  bool
		wantContent bool
	}{
		{
			name:        "plain body",
			msg:         core.EmailMessage{BodyStr: "hello"},
			wantText:    []string{"hello"},
			wantNoHTML:  true,
			wantContent: true,
		},
		{
			name: "receipt",
			msg:  core.EmailMessage{TemplateName: "payment_receipt", TemplateData: receiptData},
			wantText: []string{
				"Hello Awe,",
				`We received your payment of 1999.00 INR for "Go <in> Depth".`,
				"Payment: pay_1",
				"http://front.test/courses/course-1",
			},
			wantHTML: []string{
				"<strong>1999.00 INR</strong>",
				"Go &lt;in&gt; Depth",
				`<a href="http://front.test/courses/course-1">`,
			},
			wantContent: true,
		},
		{
			name:    "missing data",
			msg:     core.EmailMessage{TemplateName: "payment_receipt", TemplateData: map[string]interface{}{"Name": "Awe"}},
			wantErr: true,
		},
		{
			name:       "unknown template",
			msg:        core.EmailMessage{TemplateName: "lol"},
			wantNoHTML: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.msg
			err := msg.Render("http://front.test")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			for _, s := range tt.wantText {
				assert.Contains(t, msg.TextContent, s)
			}
			for _, s := range tt.wantHTML {
				assert.Contains(t, msg.HTMLContent, s)
			}
			if tt.wantNoHTML {
				assert.Empty(t, msg.HTMLContent)
			}
			assert.Equal(t, tt.wantContent, msg.HasContent())
		})
	}
}

func TestEmailMessage_HasRecipients(t *testing.T) {
	assert.False(t, (&core.EmailMessage{}).HasRecipients())
	assert.True(t, (&core.EmailMessage{To: []mail.Address{{Address: "awe@test.cd"}}}).HasRecipients())
}
