package message

import (
	"fmt"
)

// Kind is the protocol event a Message records.
type Kind uint8

const (
	ClientRequest Kind = iota + 1
	CoordinatorPropose
	ParticipantVoteCommit
	ParticipantVoteAbort
	CoordinatorAbort
	CoordinatorCommit
	ClientResultCommit
	ClientResultAbort
	CoordinatorExit
)

var kindNames = map[Kind]string{
	ClientRequest:         "ClientRequest",
	CoordinatorPropose:    "CoordinatorPropose",
	ParticipantVoteCommit: "ParticipantVoteCommit",
	ParticipantVoteAbort:  "ParticipantVoteAbort",
	CoordinatorAbort:      "CoordinatorAbort",
	CoordinatorCommit:     "CoordinatorCommit",
	ClientResultCommit:    "ClientResultCommit",
	ClientResultAbort:     "ClientResultAbort",
	CoordinatorExit:       "CoordinatorExit",
}

// Kinds lists every valid kind in declaration order.
func Kinds() []Kind {
	kinds := make([]Kind, 0, len(kindNames))
	for k := ClientRequest; k <= CoordinatorExit; k++ {
		kinds = append(kinds, k)
	}
	return kinds
}

func (k Kind) Valid() bool {
	_, ok := kindNames[k]
	return ok
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, uint8(k))
	}
	return []byte(kindNames[k]), nil
}

func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseKind maps a kind name back to its Kind.
func ParseKind(name string) (Kind, error) {
	for k, n := range kindNames {
		if n == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, name)
}

// RequestStatus is the outcome a client observes for one of its requests.
type RequestStatus uint8

const (
	StatusUnknown RequestStatus = iota
	StatusCommitted
	StatusAborted
)

func (s RequestStatus) String() string {
	switch s {
	case StatusCommitted:
		return "Committed"
	case StatusAborted:
		return "Aborted"
	default:
		return "Unknown"
	}
}
