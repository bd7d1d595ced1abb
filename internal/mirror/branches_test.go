package mirror_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/temirov/gerrit-bridge/internal/execshell"
	"github.com/temirov/gerrit-bridge/internal/mirror"
)

const (
	testRepositoryPathConstant   = "/tmp/mirror-repo"
	testGerritRemoteNameConstant = "gerrit"
	testTargetRemoteNameConstant = "target"
	testCommitSHAConstant        = "aaaa000000000000000000000000000000000000"
	testSecondCommitSHAConstant  = "bbbb000000000000000000000000000000000000"
)

type scriptedGitExecutor struct {
	executedCommands []execshell.CommandDetails
	results          []execshell.ExecutionResult
	errorsToReturn   []error
}

func (executor *scriptedGitExecutor) ExecuteGit(_ context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error) {
	callIndex := len(executor.executedCommands)
	executor.executedCommands = append(executor.executedCommands, details)

	var executionResult execshell.ExecutionResult
	if callIndex < len(executor.results) {
		executionResult = executor.results[callIndex]
	}
	var executionError error
	if callIndex < len(executor.errorsToReturn) {
		executionError = executor.errorsToReturn[callIndex]
	}
	return executionResult, executionError
}

func TestParseGerritRefRoundTripsThroughBranchNames(testInstance *testing.T) {
	changeRef, parseError := mirror.ParseGerritRef("refs/changes/01/101/3")
	require.NoError(testInstance, parseError)
	require.Equal(testInstance, mirror.ChangeRef{Directory: "01", ChangeNumber: 101, PatchNumber: 3}, changeRef)
	require.Equal(testInstance, "changes/01/101/3", changeRef.BranchPath())
	require.Equal(testInstance, "refs/heads/changes/01/101/3", changeRef.BranchRef())
	require.Equal(testInstance, "refs/changes/01/101/3", changeRef.GerritRef())
}

func TestParseGerritRefRejectsForeignRefs(testInstance *testing.T) {
	testCases := []struct {
		name string
		ref  string
	}{
		{name: "branch_ref", ref: "refs/heads/main"},
		{name: "missing_patch_number", ref: "refs/changes/01/101"},
		{name: "non_numeric_change", ref: "refs/changes/01/abc/1"},
		{name: "empty", ref: "  "},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			_, parseError := mirror.ParseGerritRef(testCase.ref)
			malformedError := mirror.MalformedRefError{}
			require.ErrorAs(testInstance, parseError, &malformedError)
		})
	}
}

func TestParseBranchLine(testInstance *testing.T) {
	testCases := []struct {
		name            string
		line            string
		expectedMatched bool
		expectedRecord  mirror.BranchRecord
	}{
		{
			name:            "change_branch",
			line:            testCommitSHAConstant + "\trefs/heads/changes/01/101/1",
			expectedMatched: true,
			expectedRecord: mirror.BranchRecord{
				CommitSHA: testCommitSHAConstant,
				Ref:       mirror.ChangeRef{Directory: "01", ChangeNumber: 101, PatchNumber: 1},
			},
		},
		{
			name:            "unrelated_branch",
			line:            testCommitSHAConstant + "\trefs/heads/main",
			expectedMatched: false,
		},
		{
			name:            "tag_ref",
			line:            testCommitSHAConstant + "\trefs/tags/v1.0.0",
			expectedMatched: false,
		},
		{
			name:            "blank_line",
			line:            "   ",
			expectedMatched: false,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			lineResult := mirror.ParseBranchLine(testCase.line)
			require.Equal(testInstance, testCase.expectedMatched, lineResult.Matched)
			if testCase.expectedMatched {
				require.Equal(testInstance, testCase.expectedRecord, lineResult.Record)
			}
		})
	}
}

func TestNewInventoryValidatesDependencies(testInstance *testing.T) {
	_, creationError := mirror.NewInventory(nil, &scriptedGitExecutor{})
	require.ErrorIs(testInstance, creationError, mirror.ErrLoggerNotConfigured)

	_, creationError = mirror.NewInventory(zap.NewNop(), nil)
	require.ErrorIs(testInstance, creationError, mirror.ErrGitExecutorNotConfigured)
}

func TestListChangeBranchesKeepsOnlyChangeNamespace(testInstance *testing.T) {
	gitExecutor := &scriptedGitExecutor{
		results: []execshell.ExecutionResult{{
			StandardOutput: testCommitSHAConstant + "\trefs/heads/main\n" +
				testCommitSHAConstant + "\trefs/heads/changes/01/101/1\n" +
				testSecondCommitSHAConstant + "\trefs/heads/changes/02/202/4\n",
		}},
	}

	inventory, creationError := mirror.NewInventory(zap.NewNop(), gitExecutor)
	require.NoError(testInstance, creationError)

	branchRecords, listError := inventory.ListChangeBranches(context.Background(), testRepositoryPathConstant, testTargetRemoteNameConstant)
	require.NoError(testInstance, listError)
	require.Equal(testInstance, []mirror.BranchRecord{
		{CommitSHA: testCommitSHAConstant, Ref: mirror.ChangeRef{Directory: "01", ChangeNumber: 101, PatchNumber: 1}},
		{CommitSHA: testSecondCommitSHAConstant, Ref: mirror.ChangeRef{Directory: "02", ChangeNumber: 202, PatchNumber: 4}},
	}, branchRecords)

	require.Len(testInstance, gitExecutor.executedCommands, 1)
	require.Equal(testInstance, []string{"ls-remote", "--branches", testTargetRemoteNameConstant}, gitExecutor.executedCommands[0].Arguments)
	require.Equal(testInstance, testRepositoryPathConstant, gitExecutor.executedCommands[0].WorkingDirectory)
}

func TestListChangeBranchesValidatesArguments(testInstance *testing.T) {
	inventory, creationError := mirror.NewInventory(zap.NewNop(), &scriptedGitExecutor{})
	require.NoError(testInstance, creationError)

	_, listError := inventory.ListChangeBranches(context.Background(), " ", testTargetRemoteNameConstant)
	require.ErrorIs(testInstance, listError, mirror.ErrRepositoryPathRequired)

	_, listError = inventory.ListChangeBranches(context.Background(), testRepositoryPathConstant, " ")
	require.ErrorIs(testInstance, listError, mirror.ErrRemoteNameRequired)
}
