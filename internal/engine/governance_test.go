package engine

import (
	"context"

	"covault/internal/engine/models"
	id "covault/pkg/domain"
	dErrors "covault/pkg/domain-errors"
)

// approve pushes a governance entry through the full quorum pipeline.
func (s *EngineSuite) approve(action models.GovernanceAction) (ExecutionResult, error) {
	index := s.submitGovernance("alice", action)
	_, err := s.engine.Confirm("alice", index)
	s.Require().NoError(err)
	_, err = s.engine.Confirm("bob", index)
	s.Require().NoError(err)
	return s.engine.Execute(context.Background(), "alice", index)
}

func (s *EngineSuite) TestGovernance_AddMember() {
	result, err := s.approve(models.GovernanceAction{Op: models.GovAddMember, Member: "dave"})
	s.Require().NoError(err)
	s.Require().NotNil(result.Governance)
	s.Equal(models.GovAddMember, result.Governance.Op)

	s.Equal([]id.Principal{"alice", "bob", "carol", "dave"}, s.engine.Members())
	s.Equal(2, s.engine.Quorum())

	// The new member participates immediately.
	index := s.submit("dave", 0)
	_, err = s.engine.Confirm("dave", index)
	s.NoError(err)
}

func (s *EngineSuite) TestGovernance_RemoveMember() {
	result, err := s.approve(models.GovernanceAction{Op: models.GovRemoveMember, Member: "carol"})
	s.Require().NoError(err)
	s.NotNil(result.Governance)

	s.Equal([]id.Principal{"alice", "bob"}, s.engine.Members())

	// A removed principal loses every privilege at once.
	_, err = s.engine.Submit("carol", models.ExternalTarget("svc://pay"), 0, nil, s.now)
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func (s *EngineSuite) TestGovernance_SetQuorum() {
	_, err := s.approve(models.GovernanceAction{Op: models.GovSetQuorum, Quorum: 3})
	s.Require().NoError(err)
	s.Equal(3, s.engine.Quorum())
}

func (s *EngineSuite) TestGovernance_FailuresAreExecutionFailures() {
	s.Run("duplicate member", func() {
		_, err := s.approve(models.GovernanceAction{Op: models.GovAddMember, Member: "bob"})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeExecutionFailed))
		// Precondition detail is preserved underneath.
		s.Contains(err.Error(), "already a member")
		// The attempt is consumed like any other failed execution.
		s.Equal([]id.Principal{"alice", "bob", "carol"}, s.engine.Members())
	})

	s.Run("quorum-unsafe removal", func() {
		// Raise quorum to 3, then any removal would strand it.
		_, err := s.approve(models.GovernanceAction{Op: models.GovSetQuorum, Quorum: 3})
		s.Require().NoError(err)

		index := s.submitGovernance("alice", models.GovernanceAction{Op: models.GovRemoveMember, Member: "carol"})
		for _, p := range []id.Principal{"alice", "bob", "carol"} {
			_, err := s.engine.Confirm(p, index)
			s.Require().NoError(err)
		}
		_, err = s.engine.Execute(context.Background(), "alice", index)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeExecutionFailed))
		s.Contains(err.Error(), "below quorum")
		s.Len(s.engine.Members(), 3)
		s.Equal(3, s.engine.Quorum())
	})

	s.Run("quorum above member count at execution time", func() {
		// The previous subtest left the quorum at 3, so all three must sign.
		index := s.submitGovernance("alice", models.GovernanceAction{Op: models.GovSetQuorum, Quorum: 4})
		for _, p := range []id.Principal{"alice", "bob", "carol"} {
			_, err := s.engine.Confirm(p, index)
			s.Require().NoError(err)
		}
		_, err := s.engine.Execute(context.Background(), "alice", index)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeExecutionFailed))
		s.Equal(3, s.engine.Quorum())
	})
}

// TestGovernance_SelfReferentialPipeline exercises the closed loop: the
// engine reconfigures its own authorization rules through the same gated
// path, and the new rules bind immediately for everything still pending.
func (s *EngineSuite) TestGovernance_SelfReferentialPipeline() {
	ctx := context.Background()

	// Pending external entry with 2 confirmations under quorum 2.
	pending := s.submit("alice", 0)
	_, err := s.engine.Confirm("alice", pending)
	s.Require().NoError(err)
	_, err = s.engine.Confirm("bob", pending)
	s.Require().NoError(err)

	// Governance adds dave and then raises the quorum to 4.
	_, err = s.approve(models.GovernanceAction{Op: models.GovAddMember, Member: "dave"})
	s.Require().NoError(err)
	_, err = s.approve(models.GovernanceAction{Op: models.GovSetQuorum, Quorum: 4})
	s.Require().NoError(err)

	// The pending entry is retroactively under-confirmed.
	_, err = s.engine.Execute(ctx, "alice", pending)
	s.True(dErrors.HasCode(err, dErrors.CodeQuorumNotMet))

	_, err = s.engine.Confirm("carol", pending)
	s.Require().NoError(err)
	_, err = s.engine.Confirm("dave", pending)
	s.Require().NoError(err)
	_, err = s.engine.Execute(ctx, "dave", pending)
	s.NoError(err)
}
