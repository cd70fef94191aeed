// Package message defines the protocol events exchanged by the coordinator,
// participants and clients of a two-phase commit run, and the line format
// they are persisted in.
package message

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
)

var (
	ErrUnknownKind  = errors.New("unknown message kind")
	ErrMissingField = errors.New("missing required field")
)

// Message is one immutable protocol event.
//
// ID is only unique within the process (or log) that assigned it and says
// nothing about ordering across processes. TransactionID is the only key that
// correlates messages between logs.
type Message struct {
	Kind          Kind   `json:"mtype"`
	ID            uint32 `json:"uid"`
	TransactionID string `json:"txid"`
	SenderID      string `json:"senderid"`
	OperationID   uint32 `json:"opid"`
}

// Counter hands out message ids. The zero value is ready to use and its first
// id is 1.
type Counter struct {
	last atomic.Uint32
}

func (c *Counter) Next() uint32 {
	return c.last.Add(1)
}

// New creates a message stamped with the next id of the counter.
func (c *Counter) New(kind Kind, txID, senderID string, opID uint32) Message {
	return Reconstruct(kind, c.Next(), txID, senderID, opID)
}

// Reconstruct builds a message with an explicit id, bypassing any counter.
func Reconstruct(kind Kind, id uint32, txID, senderID string, opID uint32) Message {
	return Message{
		Kind:          kind,
		ID:            id,
		TransactionID: txID,
		SenderID:      senderID,
		OperationID:   opID,
	}
}

// TxID builds the transaction id a client assigns to its seq-th request.
func TxID(clientID string, seq uint32) string {
	return fmt.Sprintf("%s_tx_%d", clientID, seq)
}

// MarshalLine encodes m as a single JSON record terminated by a newline.
func (m Message) MarshalLine() ([]byte, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode message %d: %w", m.ID, err)
	}
	return append(b, '\n'), nil
}

type wireMessage struct {
	Kind          *Kind   `json:"mtype"`
	ID            *uint32 `json:"uid"`
	TransactionID *string `json:"txid"`
	SenderID      *string `json:"senderid"`
	OperationID   *uint32 `json:"opid"`
}

// Parse decodes one line written by MarshalLine. A trailing newline is
// optional.
func Parse(line []byte) (Message, error) {
	line = bytes.TrimRight(line, "\r\n")

	var w wireMessage
	if err := json.Unmarshal(line, &w); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}

	switch {
	case w.Kind == nil:
		return Message{}, fmt.Errorf("%w: mtype", ErrMissingField)
	case w.ID == nil:
		return Message{}, fmt.Errorf("%w: uid", ErrMissingField)
	case w.TransactionID == nil:
		return Message{}, fmt.Errorf("%w: txid", ErrMissingField)
	case w.SenderID == nil:
		return Message{}, fmt.Errorf("%w: senderid", ErrMissingField)
	case w.OperationID == nil:
		return Message{}, fmt.Errorf("%w: opid", ErrMissingField)
	}

	return Reconstruct(*w.Kind, *w.ID, *w.TransactionID, *w.SenderID, *w.OperationID), nil
}
