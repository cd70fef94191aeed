package sim

import (
	"context"

	"go.uber.org/zap"

	"github.com/rodrigocitadin/tpc-audit/internal/message"
	"github.com/rodrigocitadin/tpc-audit/internal/store"
)

// Peer is how the coordinator reaches a participant.
type Peer interface {
	ID() int
	Propose(ctx context.Context, proposal message.Message) (message.Message, error)
	Decide(ctx context.Context, decision message.Message) error
	Exit(ctx context.Context, exit message.Message) error
}

type participant struct {
	id     int
	label  string
	log    *store.OpLog
	dice   *dice
	opProb float64
	send   float64
	logger *zap.Logger
}

func newParticipant(id uint32, log *store.OpLog, d *dice, cfg Config, logger *zap.Logger) *participant {
	label := store.ParticipantLabel(id)
	return &participant{
		id:     int(id),
		label:  label,
		log:    log,
		dice:   d,
		opProb: cfg.OperationSuccessProbability,
		send:   cfg.SendSuccessProbability,
		logger: logger.With(zap.String("participant", label)),
	}
}

func (p *participant) ID() int {
	return p.id
}

// Propose executes phase one. The vote is logged before it is sent back, so a
// reply lost on the way still leaves the vote on disk.
func (p *participant) Propose(ctx context.Context, proposal message.Message) (message.Message, error) {
	kind := message.ParticipantVoteAbort
	if p.dice.roll(p.opProb) {
		kind = message.ParticipantVoteCommit
	}

	vote, err := p.log.Append(kind, proposal.TransactionID, p.label, proposal.OperationID)
	if err != nil {
		return message.Message{}, err
	}
	p.logger.Debug("Voted", zap.String("txid", vote.TransactionID), zap.Stringer("vote", kind))

	if !p.dice.roll(p.send) {
		return message.Message{}, errDropped
	}
	return vote, nil
}

// Decide records the coordinator's phase two decision, if it arrives.
func (p *participant) Decide(ctx context.Context, decision message.Message) error {
	if !p.dice.roll(p.send) {
		p.logger.Debug("Decision lost", zap.String("txid", decision.TransactionID))
		return errDropped
	}
	_, err := p.log.Append(decision.Kind, decision.TransactionID, p.label, decision.OperationID)
	return err
}

func (p *participant) Exit(ctx context.Context, exit message.Message) error {
	_, err := p.log.Append(message.CoordinatorExit, exit.TransactionID, p.label, exit.OperationID)
	return err
}
