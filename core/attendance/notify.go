package attendance

import (
	"context"
	"fmt"
	"time"
)

type (
	// StatusChangeNotice describes a status change of an existing record.
	StatusChangeNotice struct {
		StudentID      string
		StudentName    string
		Guardians      []Guardian
		Date           Date
		PreviousStatus Status
		NewStatus      Status
		Actor          Actor
		Reason         string
		ChangedAt      time.Time
	}

	// Notifier delivers status change notices to an external collaborator.
	// Delivery is best-effort: errors are logged by the caller and never undo the change.
	Notifier interface {
		NotifyStatusChange(ctx context.Context, notice StatusChangeNotice) error
	}

	nopNotifier struct{}

	// outbox collects the notices of a unit of work, dispatched only after it commits.
	outbox struct {
		notices []StatusChangeNotice
	}
)

func (nopNotifier) NotifyStatusChange(context.Context, StatusChangeNotice) error { return nil }

func (o *outbox) add(n StatusChangeNotice) {
	o.notices = append(o.notices, n)
}

func (svc *Service) dispatch(ctx context.Context, notices []StatusChangeNotice) {
	for _, n := range notices {
		svc.notify(ctx, n)
	}
}

func (svc *Service) notify(ctx context.Context, n StatusChangeNotice) {
	defer func() {
		if r := recover(); r != nil {
			svc.logger.Error(fmt.Sprintf("notifying status change: panic: %v", r), n.Actor)
		}
	}()
	if err := svc.notifier.NotifyStatusChange(ctx, n); err != nil {
		svc.logger.Error(fmt.Sprintf("notifying status change: %v", err), err, n.Actor)
	}
}
