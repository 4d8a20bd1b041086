package notifysvc

import (
	"context"
	"fmt"
	"net/mail"

	"github.com/trezcool/asistencia/core"
	"github.com/trezcool/asistencia/core/attendance"
)

const statusChangeTemplate = "status_change"

type emailNotifier struct {
	mailSvc core.EmailService
	logger  core.Logger
}

var _ attendance.Notifier = (*emailNotifier)(nil)

// NewEmailNotifier notifies the student's guardians of status changes by email.
func NewEmailNotifier(mailSvc core.EmailService, logger core.Logger) attendance.Notifier {
	return &emailNotifier{mailSvc: mailSvc, logger: logger}
}

func (n *emailNotifier) NotifyStatusChange(_ context.Context, notice attendance.StatusChangeNotice) error {
	to := make([]mail.Address, 0, len(notice.Guardians))
	for _, g := range notice.Guardians {
		if g.Email != "" {
			to = append(to, mail.Address{Name: g.Name, Address: g.Email})
		}
	}
	if len(to) == 0 {
		n.logger.Debug(fmt.Sprintf("no guardian email for student %s: status change not notified", notice.StudentID))
		return nil
	}

	n.mailSvc.SendMessages(&core.EmailMessage{
		To:           to,
		Subject:      fmt.Sprintf("Asistencia de %s: %s", notice.StudentName, notice.NewStatus),
		TemplateName: statusChangeTemplate,
		TemplateData: map[string]interface{}{
			"StudentName":    notice.StudentName,
			"Date":           notice.Date.String(),
			"PreviousStatus": notice.PreviousStatus,
			"NewStatus":      notice.NewStatus,
			"Reason":         notice.Reason,
		},
	})
	return nil
}
