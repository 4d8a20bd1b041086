package attendance

import "github.com/pkg/errors"

var (
	// NotFound
	ErrStudentNotFound       = errors.New("student not found")
	ErrClassroomNotFound     = errors.New("classroom not found")
	ErrGateEventNotFound     = errors.New("gate event not found")
	ErrRecordNotFound        = errors.New("classroom record not found")
	ErrWithdrawalNotFound    = errors.New("withdrawal request not found")
	ErrJustificationNotFound = errors.New("justification request not found")

	ErrForbidden              = errors.New("permission denied")
	ErrInvalidStateTransition = errors.New("request is already resolved")
	// ErrNoIngressRecord is an integrity violation: egress is never recorded without ingress.
	ErrNoIngressRecord = errors.New("no ingress recorded for this student today")
)

// IsNotFound reports whether err means a student, classroom, request or record does not exist
// (or is not visible to the caller's institution).
func IsNotFound(err error) bool {
	switch errors.Cause(err) {
	case ErrStudentNotFound, ErrClassroomNotFound, ErrGateEventNotFound, ErrRecordNotFound,
		ErrWithdrawalNotFound, ErrJustificationNotFound:
		return true
	}
	return false
}
