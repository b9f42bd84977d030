package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"covault/internal/engine/models"
	id "covault/pkg/domain"
	dErrors "covault/pkg/domain-errors"
)

// =============================================================================
// Engine Test Suite
// =============================================================================
// The engine is the authorization core; these tests pin down the quorum
// lifecycle, dynamic threshold re-evaluation, and the reentrancy defense,
// none of which can be exercised precisely through the HTTP surface.

type stubExecutor struct {
	attempts []Delivery
	failWith error
	// callback runs inside Attempt, simulating a payload that re-enters
	// the engine.
	callback func(d Delivery) error
}

func (s *stubExecutor) Attempt(_ context.Context, d Delivery) error {
	s.attempts = append(s.attempts, d)
	if s.callback != nil {
		if err := s.callback(d); err != nil {
			return err
		}
	}
	return s.failWith
}

type EngineSuite struct {
	suite.Suite
	executor *stubExecutor
	engine   *Engine
	now      time.Time
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.executor = &stubExecutor{}
	s.now = time.Unix(1700000000, 0)

	var err error
	s.engine, err = New(Config{
		Members:  []id.Principal{"alice", "bob", "carol"},
		Quorum:   2,
		Executor: s.executor,
	})
	s.Require().NoError(err)
}

func (s *EngineSuite) submit(proposer id.Principal, value uint64) id.EntryIndex {
	snap, err := s.engine.Submit(proposer, models.ExternalTarget("svc://pay"), value, []byte("payload"), s.now)
	s.Require().NoError(err)
	return snap.Index
}

func (s *EngineSuite) submitGovernance(proposer id.Principal, action models.GovernanceAction) id.EntryIndex {
	snap, err := s.engine.Submit(proposer, models.GovernanceTarget(), 0, action.Encode(), s.now)
	s.Require().NoError(err)
	return snap.Index
}

// =============================================================================
// Construction
// =============================================================================

func (s *EngineSuite) TestNew() {
	s.Run("requires an executor", func() {
		_, err := New(Config{Members: []id.Principal{"a"}, Quorum: 1})
		s.Error(err)
	})

	s.Run("rejects invalid initial state", func() {
		_, err := New(Config{Members: []id.Principal{"a"}, Quorum: 2, Executor: s.executor})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidQuorum))
	})

	s.Run("exposes initial registry state", func() {
		s.Equal([]id.Principal{"alice", "bob", "carol"}, s.engine.Members())
		s.Equal(2, s.engine.Quorum())
		s.Equal(uint64(0), s.engine.Pool())
		s.Equal(0, s.engine.EntryCount())
	})
}

// =============================================================================
// Submission and confirmation
// =============================================================================

func (s *EngineSuite) TestSubmit() {
	s.Run("assigns sequential indexes", func() {
		s.Equal(id.EntryIndex(0), s.submit("alice", 10))
		s.Equal(id.EntryIndex(1), s.submit("bob", 0))
		s.Equal(2, s.engine.EntryCount())
	})

	s.Run("rejects non-members", func() {
		_, err := s.engine.Submit("mallory", models.ExternalTarget("svc://pay"), 1, nil, s.now)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("rejects malformed targets", func() {
		_, err := s.engine.Submit("alice", models.Target{Kind: models.TargetExternal}, 0, nil, s.now)
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	s.Run("rejects governance entries with value", func() {
		payload := models.GovernanceAction{Op: models.GovSetQuorum, Quorum: 3}.Encode()
		_, err := s.engine.Submit("alice", models.GovernanceTarget(), 5, payload, s.now)
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	s.Run("rejects governance entries with malformed payload", func() {
		_, err := s.engine.Submit("alice", models.GovernanceTarget(), 0, []byte("junk"), s.now)
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	s.Run("rejects values past the ledger bound", func() {
		_, err := s.engine.Submit("alice", models.ExternalTarget("svc://pay"), models.MaxValue+1, nil, s.now)
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})
}

func (s *EngineSuite) TestConfirmRevoke() {
	index := s.submit("alice", 10)

	s.Run("confirmation count tracks the set", func() {
		snap, err := s.engine.Confirm("alice", index)
		s.Require().NoError(err)
		s.Equal(1, snap.NumConfirmations)

		snap, err = s.engine.Confirm("bob", index)
		s.Require().NoError(err)
		s.Equal(2, snap.NumConfirmations)

		snap, err = s.engine.Revoke("alice", index)
		s.Require().NoError(err)
		s.Equal(1, snap.NumConfirmations)
	})

	s.Run("rejects non-members and bad indexes", func() {
		_, err := s.engine.Confirm("mallory", index)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))

		_, err = s.engine.Confirm("alice", 99)
		s.True(dErrors.HasCode(err, dErrors.CodeNoSuchEntry))

		_, err = s.engine.Revoke("mallory", index)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("double confirm and empty revoke rejected", func() {
		_, err := s.engine.Confirm("bob", index)
		s.True(dErrors.HasCode(err, dErrors.CodeAlreadyConfirmed))

		_, err = s.engine.Revoke("carol", index)
		s.True(dErrors.HasCode(err, dErrors.CodeNotConfirmed))
	})
}

// =============================================================================
// Execution
// =============================================================================

func (s *EngineSuite) TestExecute_HappyPath() {
	ctx := context.Background()
	_, err := s.engine.Deposit(100)
	s.Require().NoError(err)

	// A submits X (value 10), B confirms, A confirms: quorum 2 reached.
	index := s.submit("alice", 10)
	_, err = s.engine.Confirm("alice", index)
	s.Require().NoError(err)
	_, err = s.engine.Confirm("bob", index)
	s.Require().NoError(err)

	result, err := s.engine.Execute(ctx, "carol", index)
	s.Require().NoError(err)
	s.True(result.Entry.Executed)
	s.Equal(uint64(90), result.Pool)
	s.Equal(uint64(90), s.engine.Pool())

	s.Require().Len(s.executor.attempts, 1)
	s.Equal("svc://pay", s.executor.attempts[0].Destination)
	s.Equal(uint64(10), s.executor.attempts[0].Value)

	// Exactly-once: a second execute is rejected, not silently absorbed.
	_, err = s.engine.Execute(ctx, "alice", index)
	s.True(dErrors.HasCode(err, dErrors.CodeAlreadyExecuted))
	s.Len(s.executor.attempts, 1)
}

func (s *EngineSuite) TestExecute_QuorumNotMet() {
	ctx := context.Background()
	index := s.submit("alice", 0)

	_, err := s.engine.Confirm("alice", index)
	s.Require().NoError(err)

	_, err = s.engine.Execute(ctx, "alice", index)
	s.True(dErrors.HasCode(err, dErrors.CodeQuorumNotMet))
	s.Empty(s.executor.attempts)

	// Second confirmation arrives; the same entry now executes.
	_, err = s.engine.Confirm("bob", index)
	s.Require().NoError(err)
	_, err = s.engine.Execute(ctx, "alice", index)
	s.NoError(err)
	s.Len(s.executor.attempts, 1)
}

func (s *EngineSuite) TestExecute_Guards() {
	ctx := context.Background()
	index := s.submit("alice", 0)

	_, err := s.engine.Execute(ctx, "mallory", index)
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))

	_, err = s.engine.Execute(ctx, "alice", 42)
	s.True(dErrors.HasCode(err, dErrors.CodeNoSuchEntry))
}

func (s *EngineSuite) TestExecute_DynamicQuorum() {
	ctx := context.Background()

	// Y reaches quorum 2, then the threshold is raised to 3 before
	// execution: Y must fail until a third confirmation arrives.
	y := s.submit("alice", 0)
	_, err := s.engine.Confirm("alice", y)
	s.Require().NoError(err)
	_, err = s.engine.Confirm("bob", y)
	s.Require().NoError(err)

	raise := s.submitGovernance("alice", models.GovernanceAction{Op: models.GovSetQuorum, Quorum: 3})
	_, err = s.engine.Confirm("alice", raise)
	s.Require().NoError(err)
	_, err = s.engine.Confirm("bob", raise)
	s.Require().NoError(err)
	_, err = s.engine.Execute(ctx, "alice", raise)
	s.Require().NoError(err)
	s.Equal(3, s.engine.Quorum())

	_, err = s.engine.Execute(ctx, "alice", y)
	s.True(dErrors.HasCode(err, dErrors.CodeQuorumNotMet))

	_, err = s.engine.Confirm("carol", y)
	s.Require().NoError(err)
	_, err = s.engine.Execute(ctx, "alice", y)
	s.NoError(err)
}

func (s *EngineSuite) TestExecute_LoweredQuorumRetroactivelyEnables() {
	ctx := context.Background()

	y := s.submit("alice", 0)
	_, err := s.engine.Confirm("alice", y)
	s.Require().NoError(err)

	_, err = s.engine.Execute(ctx, "alice", y)
	s.True(dErrors.HasCode(err, dErrors.CodeQuorumNotMet))

	lower := s.submitGovernance("bob", models.GovernanceAction{Op: models.GovSetQuorum, Quorum: 1})
	_, err = s.engine.Confirm("alice", lower)
	s.Require().NoError(err)
	_, err = s.engine.Confirm("bob", lower)
	s.Require().NoError(err)
	_, err = s.engine.Execute(ctx, "bob", lower)
	s.Require().NoError(err)

	// The single existing confirmation now satisfies the lowered quorum.
	_, err = s.engine.Execute(ctx, "alice", y)
	s.NoError(err)
}

func (s *EngineSuite) TestExecute_FailureConsumesAttempt() {
	ctx := context.Background()
	_, err := s.engine.Deposit(100)
	s.Require().NoError(err)

	index := s.submit("alice", 10)
	_, err = s.engine.Confirm("alice", index)
	s.Require().NoError(err)
	_, err = s.engine.Confirm("bob", index)
	s.Require().NoError(err)

	s.executor.failWith = errors.New("downstream rejected delivery")

	_, err = s.engine.Execute(ctx, "alice", index)
	s.True(dErrors.HasCode(err, dErrors.CodeExecutionFailed))

	// The executed flag is deliberately not rolled back; the pool
	// reservation is refunded.
	snap, err := s.engine.Entry(index)
	s.Require().NoError(err)
	s.True(snap.Executed)
	s.Equal(uint64(100), s.engine.Pool())

	// No re-arm: retry requires a fresh proposal.
	_, err = s.engine.Execute(ctx, "alice", index)
	s.True(dErrors.HasCode(err, dErrors.CodeAlreadyExecuted))
}

func (s *EngineSuite) TestExecute_InsufficientPool() {
	ctx := context.Background()
	index := s.submit("alice", 50)
	_, err := s.engine.Confirm("alice", index)
	s.Require().NoError(err)
	_, err = s.engine.Confirm("bob", index)
	s.Require().NoError(err)

	_, err = s.engine.Execute(ctx, "alice", index)
	s.True(dErrors.HasCode(err, dErrors.CodeExecutionFailed))
	// The attempt is consumed without ever reaching the executor.
	s.Empty(s.executor.attempts)
	snap, err := s.engine.Entry(index)
	s.Require().NoError(err)
	s.True(snap.Executed)
}

// =============================================================================
// Reentrancy
// =============================================================================

func (s *EngineSuite) TestExecute_ReentrantCallRejected() {
	ctx := context.Background()
	_, err := s.engine.Deposit(100)
	s.Require().NoError(err)

	index := s.submit("alice", 10)
	_, err = s.engine.Confirm("alice", index)
	s.Require().NoError(err)
	_, err = s.engine.Confirm("bob", index)
	s.Require().NoError(err)

	var reentrantErr error
	s.executor.callback = func(d Delivery) error {
		// The payload targets this same engine and re-enters execute.
		_, reentrantErr = s.engine.Execute(ctx, "alice", d.Index)
		return nil
	}

	_, err = s.engine.Execute(ctx, "alice", index)
	s.Require().NoError(err)

	s.Require().Error(reentrantErr)
	s.True(dErrors.HasCode(reentrantErr, dErrors.CodeAlreadyExecuted))
	// The external delivery happened exactly once and the pool was debited
	// exactly once.
	s.Len(s.executor.attempts, 1)
	s.Equal(uint64(90), s.engine.Pool())
}

func (s *EngineSuite) TestExecute_ReentrantMutationsSeeTerminalEntry() {
	ctx := context.Background()
	_, err := s.engine.Deposit(10)
	s.Require().NoError(err)

	index := s.submit("alice", 5)
	_, err = s.engine.Confirm("alice", index)
	s.Require().NoError(err)
	_, err = s.engine.Confirm("bob", index)
	s.Require().NoError(err)

	var confirmErr, revokeErr error
	s.executor.callback = func(d Delivery) error {
		_, confirmErr = s.engine.Confirm("carol", d.Index)
		_, revokeErr = s.engine.Revoke("alice", d.Index)
		return nil
	}

	_, err = s.engine.Execute(ctx, "alice", index)
	s.Require().NoError(err)

	s.True(dErrors.HasCode(confirmErr, dErrors.CodeAlreadyExecuted))
	s.True(dErrors.HasCode(revokeErr, dErrors.CodeAlreadyExecuted))
}

// =============================================================================
// Deposits
// =============================================================================

func (s *EngineSuite) TestDeposit() {
	s.Run("accumulates", func() {
		pool, err := s.engine.Deposit(30)
		s.Require().NoError(err)
		s.Equal(uint64(30), pool)

		pool, err = s.engine.Deposit(12)
		s.Require().NoError(err)
		s.Equal(uint64(42), pool)
	})

	s.Run("rejects zero", func() {
		_, err := s.engine.Deposit(0)
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	s.Run("caps the pool at the ledger bound", func() {
		pool, err := s.engine.Deposit(models.MaxValue - 42)
		s.Require().NoError(err)
		s.Equal(models.MaxValue, pool)

		// One more unit would wrap the signed journal columns.
		_, err = s.engine.Deposit(1)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
		s.Equal(models.MaxValue, s.engine.Pool())
	})
}

// =============================================================================
// Read accessors
// =============================================================================

func (s *EngineSuite) TestEntries_Paging() {
	for i := 0; i < 5; i++ {
		s.submit("alice", uint64(i))
	}

	all := s.engine.Entries(0, 0)
	s.Len(all, 5)
	s.Equal(id.EntryIndex(0), all[0].Index)

	page := s.engine.Entries(1, 2)
	s.Require().Len(page, 2)
	s.Equal(id.EntryIndex(1), page[0].Index)
	s.Equal(id.EntryIndex(2), page[1].Index)

	s.Nil(s.engine.Entries(9, 2))
	s.Nil(s.engine.Entries(-1, 2))
}
