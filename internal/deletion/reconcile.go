package deletion

import "errors"

// ConsentOutcome is the final state of the consent flow for one request.
type ConsentOutcome string

const (
	ConsentNone          ConsentOutcome = ""
	ConsentApproved      ConsentOutcome = "approved"
	ConsentDenied        ConsentOutcome = "denied"
	ConsentNoHostContext ConsentOutcome = "no_host_context"
	ConsentTimeout       ConsentOutcome = "timeout"
	ConsentCanceled      ConsentOutcome = "canceled"
)

func (o ConsentOutcome) kind() Kind {
	switch o {
	case ConsentDenied:
		return KindUserDenied
	case ConsentNoHostContext:
		return KindNoHostContext
	case ConsentTimeout:
		return KindTimeout
	case ConsentCanceled:
		return KindCanceled
	default:
		return ""
	}
}

// LayerReport is what one layer (filesystem or index) contributed.
type LayerReport struct {
	Attempted bool     `json:"attempted"`
	Found     bool     `json:"found"`
	Deleted   bool     `json:"deleted"`
	Steps     []string `json:"steps,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// Report breaks a verdict down per layer.
type Report struct {
	Direct  LayerReport    `json:"direct"`
	Index   LayerReport    `json:"index"`
	Consent ConsentOutcome `json:"consent,omitempty"`
}

// ReconcileInput gathers every signal for one request.
type ReconcileInput struct {
	Path          string
	Tier          Tier
	ExistedBefore bool
	ExistsAfter   bool
	Removal       *RemovalOutcome
	Index         *IndexOutcome
	Consent       ConsentOutcome
	// Cause overrides the failure cause, for consent flows that ended
	// because the host could not be reached.
	Cause error
}

// Verdict is the reconciled outcome.
type Verdict struct {
	Deleted bool
	// Partial marks a success where the file or its index row survived.
	Partial bool
	Err     *Error
	Report  Report
}

// Reconcile combines every signal into one verdict. Any affirmative signal
// wins, except that a negative consent outcome is final.
func Reconcile(in ReconcileInput) Verdict {
	v := Verdict{Report: Report{Consent: in.Consent}}

	if in.Removal != nil {
		v.Report.Direct = LayerReport{
			Attempted: len(in.Removal.Steps) > 0,
			Found:     in.Removal.Existed,
			Deleted:   in.Removal.Existed && in.Removal.Removed,
			Steps:     in.Removal.Steps,
		}
		if in.Removal.Err != nil {
			v.Report.Direct.Error = in.Removal.Err.Error()
		}
	} else {
		v.Report.Direct.Found = in.ExistedBefore
	}

	indexRemains := false
	if in.Index != nil {
		v.Report.Index = LayerReport{
			Attempted: true,
			Found:     in.Index.Found,
			Deleted:   in.Index.Deregistered,
		}
		if in.Index.Err != nil {
			v.Report.Index.Error = in.Index.Err.Error()
		}
		indexRemains = in.Index.Found && !in.Index.Deregistered
	}

	if k := in.Consent.kind(); k != "" {
		v.Err = newError(k, in.Path, in.Cause)
		return v
	}

	removed := in.Removal != nil && in.Removal.Removed
	deregistered := in.Index != nil && in.Index.Deregistered
	approved := in.Consent == ConsentApproved

	v.Deleted = !in.ExistsAfter || removed || deregistered || approved
	if !v.Deleted {
		v.Err = failure(in)
		return v
	}
	v.Partial = in.ExistsAfter || (indexRemains && !approved)
	return v
}

func failure(in ReconcileInput) *Error {
	var cause error
	if in.Removal != nil {
		cause = in.Removal.Err
	}
	if in.Tier == ExceptionRecoverable && in.Index != nil && in.Index.SecurityFault {
		if cause == nil {
			cause = in.Index.Err
		} else {
			cause = errors.Join(in.Index.Err, cause)
		}
		return newError(KindPermissionDenied, in.Path, cause)
	}
	return newError(KindDeletionFailed, in.Path, cause)
}
