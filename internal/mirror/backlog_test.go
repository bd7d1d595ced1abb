package mirror_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/temirov/gerrit-bridge/internal/mirror"
)

func TestComputeBacklogPreservesOrderAndSkipsDelivered(testInstance *testing.T) {
	candidateRefs := []string{
		"refs/changes/01/101/1",
		"refs/changes/02/202/1",
		"refs/changes/03/303/2",
	}
	existingBranches := []mirror.BranchRecord{
		{CommitSHA: testCommitSHAConstant, Ref: mirror.ChangeRef{Directory: "02", ChangeNumber: 202, PatchNumber: 1}},
	}

	backlog, backlogError := mirror.ComputeBacklog(zap.NewNop(), candidateRefs, existingBranches)
	require.NoError(testInstance, backlogError)
	require.Equal(testInstance, []string{"refs/changes/01/101/1", "refs/changes/03/303/2"}, backlog.PendingRefs)
	require.Equal(testInstance, []string{"refs/changes/02/202/1"}, backlog.DeliveredRefs)
}

func TestComputeBacklogCollapsesDuplicates(testInstance *testing.T) {
	candidateRefs := []string{
		"refs/changes/01/101/1",
		"refs/changes/01/101/1",
		"refs/changes/02/202/1",
	}

	backlog, backlogError := mirror.ComputeBacklog(zap.NewNop(), candidateRefs, nil)
	require.NoError(testInstance, backlogError)
	require.Equal(testInstance, []string{"refs/changes/01/101/1", "refs/changes/02/202/1"}, backlog.PendingRefs)
}

func TestComputeBacklogIsEmptyWhenEverythingDelivered(testInstance *testing.T) {
	candidateRefs := []string{"refs/changes/01/101/1"}
	existingBranches := []mirror.BranchRecord{
		{CommitSHA: testCommitSHAConstant, Ref: mirror.ChangeRef{Directory: "01", ChangeNumber: 101, PatchNumber: 1}},
	}

	backlog, backlogError := mirror.ComputeBacklog(zap.NewNop(), candidateRefs, existingBranches)
	require.NoError(testInstance, backlogError)
	require.Empty(testInstance, backlog.PendingRefs)
	require.Equal(testInstance, candidateRefs, backlog.DeliveredRefs)
}

func TestComputeBacklogRejectsMalformedRefs(testInstance *testing.T) {
	_, backlogError := mirror.ComputeBacklog(zap.NewNop(), []string{"refs/heads/main"}, nil)
	malformedError := mirror.MalformedRefError{}
	require.ErrorAs(testInstance, backlogError, &malformedError)
	require.Equal(testInstance, "refs/heads/main", malformedError.Ref)
}
