package sim

import (
	"context"

	"go.uber.org/zap"

	"github.com/rodrigocitadin/tpc-audit/internal/message"
	"github.com/rodrigocitadin/tpc-audit/internal/store"
)

type client struct {
	label       string
	log         *store.OpLog
	requests    chan<- request
	numRequests uint32
	counter     message.Counter
	logger      *zap.Logger
}

type outcomes struct {
	committed int
	aborted   int
	unknown   int
}

// run issues the client's requests one after another.
func (c *client) run(ctx context.Context) (outcomes, error) {
	var out outcomes

	for seq := uint32(1); seq <= c.numRequests; seq++ {
		txID := message.TxID(c.label, seq)
		if _, err := c.log.Append(message.ClientRequest, txID, c.label, seq); err != nil {
			return out, err
		}

		req := request{
			msg:   c.counter.New(message.ClientRequest, txID, c.label, seq),
			reply: make(chan message.Message, 1),
		}
		select {
		case c.requests <- req:
		case <-ctx.Done():
			return out, ctx.Err()
		}

		var (
			result message.Message
			ok     bool
		)
		select {
		case result, ok = <-req.reply:
		case <-ctx.Done():
			return out, ctx.Err()
		}

		status := statusOf(result, ok)
		switch status {
		case message.StatusCommitted:
			out.committed++
			if _, err := c.log.Append(message.ClientResultCommit, txID, c.label, seq); err != nil {
				return out, err
			}
		case message.StatusAborted:
			out.aborted++
			if _, err := c.log.Append(message.ClientResultAbort, txID, c.label, seq); err != nil {
				return out, err
			}
		default:
			out.unknown++
		}
		c.logger.Debug("Request finished", zap.String("txid", txID), zap.Stringer("status", status))
	}

	return out, nil
}

func statusOf(result message.Message, ok bool) message.RequestStatus {
	if !ok {
		return message.StatusUnknown
	}
	switch result.Kind {
	case message.ClientResultCommit:
		return message.StatusCommitted
	case message.ClientResultAbort:
		return message.StatusAborted
	default:
		return message.StatusUnknown
	}
}
