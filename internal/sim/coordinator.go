package sim

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rodrigocitadin/tpc-audit/internal/message"
	"github.com/rodrigocitadin/tpc-audit/internal/metrics"
	"github.com/rodrigocitadin/tpc-audit/internal/store"
)

const CoordinatorID = "coordinator"

// request is a client transaction handed to the coordinator. The coordinator
// sends the result on reply, or closes reply without sending when the result
// is lost.
type request struct {
	msg   message.Message
	reply chan message.Message
}

type coordinator struct {
	log      *store.OpLog
	peers    []Peer
	requests <-chan request
	counter  message.Counter
	dice     *dice
	send     float64
	timeout  time.Duration
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// serve decides transactions one at a time until requests is closed.
func (c *coordinator) serve(ctx context.Context) error {
	for {
		select {
		case req, ok := <-c.requests:
			if !ok {
				return c.shutdown(ctx)
			}
			result, err := c.transaction(ctx, req.msg)
			if err != nil {
				close(req.reply)
				return err
			}
			if c.dice.roll(c.send) {
				req.reply <- result
			}
			close(req.reply)

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// transaction runs both phases for one client request and returns the result
// message for the client.
func (c *coordinator) transaction(ctx context.Context, req message.Message) (message.Message, error) {
	proposal, err := c.log.Append(message.CoordinatorPropose, req.TransactionID, CoordinatorID, req.OperationID)
	if err != nil {
		return message.Message{}, err
	}

	votes := Broadcast(ctx, c.peers, c.timeout, func(ctx context.Context, p Peer) (message.Message, error) {
		return p.Propose(ctx, proposal)
	})

	commit := true
	for _, v := range votes {
		if v.Err != nil {
			if !lost(v.Err) {
				return message.Message{}, fmt.Errorf("participant %d: %w", v.PeerID, v.Err)
			}
			c.logger.Debug("Vote missing, counting as abort", zap.Int("peer_id", v.PeerID), zap.Error(v.Err))
			commit = false
			continue
		}
		if v.Value.Kind != message.ParticipantVoteCommit {
			commit = false
		}
	}

	kind, resultKind, outcome := message.CoordinatorAbort, message.ClientResultAbort, "abort"
	if commit {
		kind, resultKind, outcome = message.CoordinatorCommit, message.ClientResultCommit, "commit"
	}

	decision, err := c.log.Append(kind, req.TransactionID, CoordinatorID, req.OperationID)
	if err != nil {
		return message.Message{}, err
	}

	acks := Broadcast(ctx, c.peers, c.timeout, func(ctx context.Context, p Peer) (struct{}, error) {
		return struct{}{}, p.Decide(ctx, decision)
	})
	for _, a := range acks {
		if a.Err != nil && !lost(a.Err) {
			return message.Message{}, fmt.Errorf("participant %d: %w", a.PeerID, a.Err)
		}
	}

	if c.metrics != nil {
		c.metrics.Transactions.WithLabelValues(outcome).Inc()
	}
	c.logger.Info("Transaction decided", zap.String("txid", req.TransactionID), zap.String("outcome", outcome))

	return c.counter.New(resultKind, req.TransactionID, CoordinatorID, req.OperationID), nil
}

func (c *coordinator) shutdown(ctx context.Context) error {
	if _, err := c.log.Append(message.CoordinatorExit, "", CoordinatorID, 0); err != nil {
		return err
	}

	exit := c.counter.New(message.CoordinatorExit, "", CoordinatorID, 0)
	results := Broadcast(ctx, c.peers, c.timeout, func(ctx context.Context, p Peer) (struct{}, error) {
		return struct{}{}, p.Exit(ctx, exit)
	})
	for _, r := range results {
		if r.Err != nil && !lost(r.Err) {
			return fmt.Errorf("participant %d exit: %w", r.PeerID, r.Err)
		}
	}

	c.logger.Info("Coordinator exiting")
	return nil
}
