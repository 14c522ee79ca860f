package report

import (
	"fmt"
	"strings"
	"text/template"

	"feeledger/internal/core"
)

const reminderTemplate = `Dear {{.Name}},
This is a reminder that {{.AmountDue}} is due for your tuition fees.
{{- if .LastPaymentDate}}
Your last payment was received on {{.LastPaymentDate}}.
{{- else}}
We have not received a payment from you yet.
{{- end}}
Please quote your student code {{.Code}} when paying. Thank you.`

var reminderTmpl = template.Must(template.New("reminder").Parse(reminderTemplate))

type reminderData struct {
	Name            string
	Code            string
	AmountDue       string
	LastPaymentDate string
}

// ReminderText composes the payment reminder message for a pending student.
func ReminderText(r core.Reminder) (string, error) {
	var b strings.Builder
	err := reminderTmpl.Execute(&b, reminderData{
		Name:            r.Name,
		Code:            r.Code,
		AmountDue:       r.AmountDue.String(),
		LastPaymentDate: r.LastPaymentDate.String(),
	})
	if err != nil {
		return "", fmt.Errorf("render reminder for %s: %w", r.StudentID, err)
	}
	return b.String(), nil
}
