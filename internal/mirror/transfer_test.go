package mirror_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/temirov/gerrit-bridge/internal/execshell"
	"github.com/temirov/gerrit-bridge/internal/mirror"
)

func newTransferOptions() mirror.TransferOptions {
	return mirror.TransferOptions{
		RepositoryPath: testRepositoryPathConstant,
		GerritRemote:   testGerritRemoteNameConstant,
		TargetRemote:   testTargetRemoteNameConstant,
		Limit:          5,
		PushNoVerify:   true,
	}
}

func TestNewTransferorValidatesDependencies(testInstance *testing.T) {
	_, creationError := mirror.NewTransferor(nil, &scriptedGitExecutor{})
	require.ErrorIs(testInstance, creationError, mirror.ErrLoggerNotConfigured)

	_, creationError = mirror.NewTransferor(zap.NewNop(), nil)
	require.ErrorIs(testInstance, creationError, mirror.ErrGitExecutorNotConfigured)
}

func TestTransferFetchesThenPushesEachRef(testInstance *testing.T) {
	gitExecutor := &scriptedGitExecutor{}
	transferor, creationError := mirror.NewTransferor(zap.NewNop(), gitExecutor)
	require.NoError(testInstance, creationError)

	summary, transferError := transferor.Transfer(context.Background(), newTransferOptions(), []string{"refs/changes/01/101/1", "refs/changes/02/202/3"})
	require.NoError(testInstance, transferError)
	require.Equal(testInstance, []string{"refs/changes/01/101/1", "refs/changes/02/202/3"}, summary.TransferredRefs)
	require.Empty(testInstance, summary.DeferredRefs)

	require.Len(testInstance, gitExecutor.executedCommands, 4)
	require.Equal(testInstance, []string{"fetch", testGerritRemoteNameConstant, "refs/changes/01/101/1"}, gitExecutor.executedCommands[0].Arguments)
	require.Equal(testInstance, []string{"push", testTargetRemoteNameConstant, "FETCH_HEAD:refs/heads/changes/01/101/1", "--no-verify"}, gitExecutor.executedCommands[1].Arguments)
	require.Equal(testInstance, []string{"fetch", testGerritRemoteNameConstant, "refs/changes/02/202/3"}, gitExecutor.executedCommands[2].Arguments)
	require.Equal(testInstance, []string{"push", testTargetRemoteNameConstant, "FETCH_HEAD:refs/heads/changes/02/202/3", "--no-verify"}, gitExecutor.executedCommands[3].Arguments)
	for _, executedCommand := range gitExecutor.executedCommands {
		require.Equal(testInstance, testRepositoryPathConstant, executedCommand.WorkingDirectory)
	}
}

func TestTransferOmitsNoVerifyWhenDisabled(testInstance *testing.T) {
	gitExecutor := &scriptedGitExecutor{}
	transferor, creationError := mirror.NewTransferor(zap.NewNop(), gitExecutor)
	require.NoError(testInstance, creationError)

	options := newTransferOptions()
	options.PushNoVerify = false
	_, transferError := transferor.Transfer(context.Background(), options, []string{"refs/changes/01/101/1"})
	require.NoError(testInstance, transferError)

	require.Len(testInstance, gitExecutor.executedCommands, 2)
	require.Equal(testInstance, []string{"push", testTargetRemoteNameConstant, "FETCH_HEAD:refs/heads/changes/01/101/1"}, gitExecutor.executedCommands[1].Arguments)
}

func TestTransferDefersRefsBeyondLimit(testInstance *testing.T) {
	gitExecutor := &scriptedGitExecutor{}
	transferor, creationError := mirror.NewTransferor(zap.NewNop(), gitExecutor)
	require.NoError(testInstance, creationError)

	options := newTransferOptions()
	options.Limit = 1
	summary, transferError := transferor.Transfer(context.Background(), options, []string{"refs/changes/01/101/1", "refs/changes/02/202/1", "refs/changes/03/303/1"})
	require.NoError(testInstance, transferError)
	require.Equal(testInstance, []string{"refs/changes/01/101/1"}, summary.TransferredRefs)
	require.Equal(testInstance, []string{"refs/changes/02/202/1", "refs/changes/03/303/1"}, summary.DeferredRefs)
	require.Len(testInstance, gitExecutor.executedCommands, 2)
}

func TestTransferStopsOnPushFailureAndKeepsProgress(testInstance *testing.T) {
	pushFailure := execshell.CommandFailedError{
		Command: execshell.ShellCommand{Name: execshell.CommandGit},
		Result:  execshell.ExecutionResult{ExitCode: 128, StandardError: "remote rejected"},
	}
	gitExecutor := &scriptedGitExecutor{
		errorsToReturn: []error{nil, nil, nil, pushFailure},
	}
	transferor, creationError := mirror.NewTransferor(zap.NewNop(), gitExecutor)
	require.NoError(testInstance, creationError)

	summary, transferError := transferor.Transfer(context.Background(), newTransferOptions(), []string{"refs/changes/01/101/1", "refs/changes/02/202/1", "refs/changes/03/303/1"})
	require.Equal(testInstance, []string{"refs/changes/01/101/1"}, summary.TransferredRefs)

	transferFailure := mirror.TransferFailedError{}
	require.ErrorAs(testInstance, transferError, &transferFailure)
	require.Equal(testInstance, "refs/changes/02/202/1", transferFailure.Ref)
	require.Equal(testInstance, 128, transferFailure.ExitCode)

	commandFailure := execshell.CommandFailedError{}
	require.ErrorAs(testInstance, transferError, &commandFailure)
	require.Equal(testInstance, "remote rejected", commandFailure.Result.StandardError)

	require.Len(testInstance, gitExecutor.executedCommands, 4)
}

func TestTransferRejectsMalformedRefs(testInstance *testing.T) {
	gitExecutor := &scriptedGitExecutor{}
	transferor, creationError := mirror.NewTransferor(zap.NewNop(), gitExecutor)
	require.NoError(testInstance, creationError)

	_, transferError := transferor.Transfer(context.Background(), newTransferOptions(), []string{"refs/heads/main"})
	transferFailure := mirror.TransferFailedError{}
	require.ErrorAs(testInstance, transferError, &transferFailure)
	malformedError := mirror.MalformedRefError{}
	require.ErrorAs(testInstance, transferError, &malformedError)
	require.Empty(testInstance, gitExecutor.executedCommands)
}
