package engine

import (
	"context"

	"covault/internal/engine/models"
	id "covault/pkg/domain"
	dErrors "covault/pkg/domain-errors"
)

// TestApplyExecution_RebuildsIdenticalState replays a recorded history into a
// fresh engine and checks the rebuilt state matches the live one.
func (s *EngineSuite) TestApplyExecution_RebuildsIdenticalState() {
	ctx := context.Background()

	// Live history: deposit, governance quorum change, one paid delivery,
	// one failed delivery.
	_, err := s.engine.Deposit(100)
	s.Require().NoError(err)

	lower := s.submitGovernance("alice", models.GovernanceAction{Op: models.GovSetQuorum, Quorum: 1})
	_, err = s.engine.Confirm("alice", lower)
	s.Require().NoError(err)
	_, err = s.engine.Confirm("bob", lower)
	s.Require().NoError(err)
	_, err = s.engine.Execute(ctx, "alice", lower)
	s.Require().NoError(err)

	paid := s.submit("bob", 25)
	_, err = s.engine.Confirm("bob", paid)
	s.Require().NoError(err)
	_, err = s.engine.Execute(ctx, "bob", paid)
	s.Require().NoError(err)

	failed := s.submit("carol", 5)
	_, err = s.engine.Confirm("carol", failed)
	s.Require().NoError(err)
	s.executor.failWith = dErrors.New(dErrors.CodeInternal, "boom")
	_, err = s.engine.Execute(ctx, "carol", failed)
	s.Require().Error(err)

	// Rebuild: same ordered operations, executions applied from outcomes.
	rebuilt, err := New(Config{
		Members:  []id.Principal{"alice", "bob", "carol"},
		Quorum:   2,
		Executor: &stubExecutor{},
	})
	s.Require().NoError(err)

	_, err = rebuilt.Deposit(100)
	s.Require().NoError(err)
	_, err = rebuilt.Submit("alice", models.GovernanceTarget(), 0,
		models.GovernanceAction{Op: models.GovSetQuorum, Quorum: 1}.Encode(), s.now)
	s.Require().NoError(err)
	_, err = rebuilt.Confirm("alice", lower)
	s.Require().NoError(err)
	_, err = rebuilt.Confirm("bob", lower)
	s.Require().NoError(err)
	s.Require().NoError(rebuilt.ApplyExecution("alice", lower, true))

	_, err = rebuilt.Submit("bob", models.ExternalTarget("svc://pay"), 25, []byte("payload"), s.now)
	s.Require().NoError(err)
	_, err = rebuilt.Confirm("bob", paid)
	s.Require().NoError(err)
	s.Require().NoError(rebuilt.ApplyExecution("bob", paid, true))

	_, err = rebuilt.Submit("carol", models.ExternalTarget("svc://pay"), 5, []byte("payload"), s.now)
	s.Require().NoError(err)
	_, err = rebuilt.Confirm("carol", failed)
	s.Require().NoError(err)
	s.Require().NoError(rebuilt.ApplyExecution("carol", failed, false))

	s.Equal(s.engine.Members(), rebuilt.Members())
	s.Equal(s.engine.Quorum(), rebuilt.Quorum())
	s.Equal(s.engine.Pool(), rebuilt.Pool())
	s.Equal(s.engine.EntryCount(), rebuilt.EntryCount())
	for i := 0; i < s.engine.EntryCount(); i++ {
		want, err := s.engine.Entry(id.EntryIndex(i))
		s.Require().NoError(err)
		got, err := rebuilt.Entry(id.EntryIndex(i))
		s.Require().NoError(err)
		s.Equal(want, got)
	}

	// No executor was ever invoked during replay.
	s.Empty(rebuilt.executor.(*stubExecutor).attempts)
}

func (s *EngineSuite) TestApplyExecution_DivergenceDetected() {
	index := s.submit("alice", 0)

	s.Run("quorum not met", func() {
		err := s.engine.ApplyExecution("alice", index, true)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})

	s.Run("pool underflow", func() {
		paid := s.submit("alice", 10)
		_, err := s.engine.Confirm("alice", paid)
		s.Require().NoError(err)
		_, err = s.engine.Confirm("bob", paid)
		s.Require().NoError(err)

		err = s.engine.ApplyExecution("alice", paid, true)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})

	s.Run("already terminal", func() {
		_, err := s.engine.Deposit(10)
		s.Require().NoError(err)
		paid := s.submit("alice", 1)
		_, err = s.engine.Confirm("alice", paid)
		s.Require().NoError(err)
		_, err = s.engine.Confirm("bob", paid)
		s.Require().NoError(err)
		s.Require().NoError(s.engine.ApplyExecution("alice", paid, true))

		err = s.engine.ApplyExecution("alice", paid, true)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})
}
