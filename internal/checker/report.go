package checker

import (
	"fmt"
	"io"

	"github.com/google/uuid"
)

// Invariant names one of the cross-log conditions a participant must satisfy
// against the coordinator.
type Invariant uint8

const (
	// InvariantA: global commits seen by the participant <= commits issued.
	InvariantA Invariant = iota + 1
	// InvariantB: local commit votes >= commits issued.
	InvariantB
	// InvariantC: global aborts seen by the participant <= aborts issued.
	InvariantC
	// InvariantD: exactly one local commit vote per committed transaction.
	InvariantD
)

func (i Invariant) String() string {
	switch i {
	case InvariantA:
		return "A"
	case InvariantB:
		return "B"
	case InvariantC:
		return "C"
	case InvariantD:
		return "D"
	default:
		return "?"
	}
}

func (i Invariant) Description() string {
	switch i {
	case InvariantA:
		return "global commits recorded <= global commits issued"
	case InvariantB:
		return "local commit votes >= global commits issued"
	case InvariantC:
		return "global aborts recorded <= global aborts issued"
	case InvariantD:
		return "exactly one local commit vote per globally committed transaction"
	default:
		return "unknown invariant"
	}
}

// Violation is one failed invariant for one participant. TransactionID is
// only set for InvariantD.
type Violation struct {
	Participant   string
	Invariant     Invariant
	TransactionID string
	Expected      int
	Actual        int
}

func (v Violation) String() string {
	if v.TransactionID != "" {
		return fmt.Sprintf("%s: invariant %s (%s): txid %s: expected %d, found %d",
			v.Participant, v.Invariant, v.Invariant.Description(), v.TransactionID, v.Expected, v.Actual)
	}
	return fmt.Sprintf("%s: invariant %s (%s): expected %d, found %d",
		v.Participant, v.Invariant, v.Invariant.Description(), v.Expected, v.Actual)
}

// ParticipantResult is what the checker observed in one participant log.
type ParticipantResult struct {
	Participant      string
	NumCommit        int
	NumAbort         int
	GlobalCommits    int
	LocalVoteCommits int
	GlobalAborts     int
	Violations       []Violation
}

func (r ParticipantResult) OK() bool {
	return len(r.Violations) == 0
}

func (r ParticipantResult) String() string {
	status := "OK"
	if !r.OK() {
		status = "FAILED"
	}
	return fmt.Sprintf("%s %s: Committed: %d == %d (Committed-global), Aborted: %d <= %d (Aborted-global)",
		r.Participant, status, r.GlobalCommits, r.NumCommit, r.GlobalAborts, r.NumAbort)
}

// Report is the outcome of auditing one run.
type Report struct {
	AuditID      uuid.UUID
	Run          Run
	NumCommit    int
	NumAbort     int
	Participants []ParticipantResult
}

func (r *Report) OK() bool {
	for _, p := range r.Participants {
		if !p.OK() {
			return false
		}
	}
	return true
}

func (r *Report) Violations() []Violation {
	var all []Violation
	for _, p := range r.Participants {
		all = append(all, p.Violations...)
	}
	return all
}

// WriteTo prints one line per participant, followed by an indented line per
// violation.
func (r *Report) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for _, p := range r.Participants {
		n, err := fmt.Fprintln(w, p.String())
		total += int64(n)
		if err != nil {
			return total, err
		}
		for _, v := range p.Violations {
			n, err := fmt.Fprintf(w, "    %s\n", v)
			total += int64(n)
			if err != nil {
				return total, err
			}
		}
	}
	return total, nil
}
