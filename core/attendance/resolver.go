package attendance

// Resolution is the status displayed for a student on a day, and the signal it came from.
type Resolution struct {
	Status Status     `json:"status"`
	Source Precedence `json:"source"`
}

// Resolve computes the single attendance status of a student for one day from every signal
// available for that day. Any argument may be nil. Precedence, highest first, is authorized
// withdrawal, approved justification, teacher record, gate suggestion and finally AUSENTE.
// A justification only converts statuses that require one; a record that already holds a
// higher-precedence status keeps it.
func Resolve(gate *GateEvent, record *ClassroomRecord, withdrawal *WithdrawalRequest, justification *JustificationRequest) Resolution {
	if withdrawal != nil && withdrawal.IsActive() {
		return Resolution{Status: StatusWithdrawn, Source: PrecedenceWithdrawal}
	}

	res := Resolution{Status: StatusAbsent, Source: PrecedenceDefault}
	switch {
	case record != nil && record.Status.Valid():
		res = Resolution{Status: record.Status, Source: record.Status.Precedence()}
	case gate != nil && gate.State.Valid():
		res = Resolution{Status: gate.State.Suggestion(), Source: PrecedenceGate}
	}

	if justification != nil && justification.IsActive() && res.Status.RequiresJustification() {
		return Resolution{Status: StatusJustified, Source: PrecedenceJustification}
	}
	return res
}
