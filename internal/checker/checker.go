// Package checker audits the operation logs of a finished two-phase commit
// run. It cross-references the coordinator log with every participant log by
// transaction id and reports each invariant that did not hold.
package checker

import (
	"fmt"
	"maps"
	"path/filepath"
	"slices"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rodrigocitadin/tpc-audit/internal/message"
	"github.com/rodrigocitadin/tpc-audit/internal/metrics"
	"github.com/rodrigocitadin/tpc-audit/internal/store"
)

// Run describes the run being audited. NumClients and NumRequests are only
// reported; participants are located by index under LogDir.
type Run struct {
	NumClients      uint32
	NumRequests     uint32
	NumParticipants uint32
	LogDir          string
}

type Checker struct {
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func New(logger *zap.Logger, m *metrics.Metrics) *Checker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Checker{
		logger:  logger.With(zap.String("component", "checker")),
		metrics: m,
	}
}

// CheckLastRun loads the coordinator log and every participant log of run and
// checks each participant against the coordinator. A log that cannot be
// loaded fails the audit; invariant violations are returned in the report.
func (c *Checker) CheckLastRun(run Run) (*Report, error) {
	report := &Report{
		AuditID: uuid.New(),
		Run:     run,
	}
	logger := c.logger.With(zap.Stringer("audit_id", report.AuditID))
	logger.Info("Checking 2PC run",
		zap.Uint32("requests", run.NumRequests),
		zap.Uint32("clients", run.NumClients),
		zap.Uint32("participants", run.NumParticipants),
		zap.String("log_dir", run.LogDir))

	coordLog, err := c.load(filepath.Join(run.LogDir, store.CoordinatorLogName))
	if err != nil {
		return nil, fmt.Errorf("load coordinator log: %w", err)
	}

	committed := coordLog.Handle().Select(message.CoordinatorCommit)
	aborted := coordLog.Handle().Select(message.CoordinatorAbort)
	report.NumCommit = len(committed)
	report.NumAbort = len(aborted)

	for pid := range run.NumParticipants {
		label := store.ParticipantLabel(pid)
		participantLog, err := c.load(filepath.Join(run.LogDir, store.ParticipantLogName(pid)))
		if err != nil {
			return nil, fmt.Errorf("load %s log: %w", label, err)
		}

		result := c.CheckParticipant(label, report.NumCommit, report.NumAbort, committed, participantLog.Handle().Snapshot())
		report.Participants = append(report.Participants, result)

		if result.OK() {
			logger.Info("Participant consistent", zap.String("participant", label))
		} else {
			logger.Warn("Participant inconsistent",
				zap.String("participant", label),
				zap.Int("violations", len(result.Violations)))
		}
	}

	return report, nil
}

func (c *Checker) load(path string) (*store.OpLog, error) {
	return store.FromFile(path, store.WithLogger(c.logger), store.WithMetrics(c.metrics))
}

// CheckParticipant checks one participant log against the coordinator's
// outcome counts and committed transactions. Every violated invariant is
// reported; nothing short-circuits.
func (c *Checker) CheckParticipant(
	participant string,
	numCommit, numAbort int,
	coordCommitted map[uint32]message.Message,
	participantLog map[uint32]message.Message,
) ParticipantResult {
	result := ParticipantResult{
		Participant: participant,
		NumCommit:   numCommit,
		NumAbort:    numAbort,
	}

	localVotes := make(map[string]int)
	for _, m := range participantLog {
		switch m.Kind {
		case message.CoordinatorCommit:
			result.GlobalCommits++
		case message.ParticipantVoteCommit:
			result.LocalVoteCommits++
			localVotes[m.TransactionID]++
		case message.CoordinatorAbort:
			result.GlobalAborts++
		}
	}

	violate := func(inv Invariant, txID string, expected, actual int) {
		result.Violations = append(result.Violations, Violation{
			Participant:   participant,
			Invariant:     inv,
			TransactionID: txID,
			Expected:      expected,
			Actual:        actual,
		})
		if c.metrics != nil {
			c.metrics.Violations.WithLabelValues(inv.String()).Inc()
		}
	}

	if result.GlobalCommits > numCommit {
		violate(InvariantA, "", numCommit, result.GlobalCommits)
	}
	if result.LocalVoteCommits < numCommit {
		violate(InvariantB, "", numCommit, result.LocalVoteCommits)
	}
	if result.GlobalAborts > numAbort {
		violate(InvariantC, "", numAbort, result.GlobalAborts)
	}

	for _, key := range slices.Sorted(maps.Keys(coordCommitted)) {
		txID := coordCommitted[key].TransactionID
		if found := localVotes[txID]; found != 1 {
			violate(InvariantD, txID, 1, found)
		}
	}

	if c.metrics != nil {
		c.metrics.ParticipantsChecked.Inc()
	}
	return result
}
