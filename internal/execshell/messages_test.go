package execshell_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temirov/gerrit-bridge/internal/execshell"
)

const (
	testFetchStartCaseNameConstant      = "git_fetch_start"
	testPushFailureCaseNameConstant     = "git_push_failure"
	testLSRemoteSuccessCaseNameConstant = "git_ls_remote_success"
	testRemoteListStartCaseNameConstant = "git_remote_list_start"
	testGenericFailureCaseNameConstant  = "generic_execution_failure"
	testRepositoryPathConstant          = "/tmp/mirror"
	testGerritRemoteNameConstant        = "gerrit"
	testTargetRemoteNameConstant        = "target"
	testChangeReferenceConstant         = "refs/changes/01/101/1"
)

func TestCommandMessageFormatterDescribesGitCommands(testInstance *testing.T) {
	formatter := execshell.CommandMessageFormatter{}

	testCases := []struct {
		name            string
		buildMessage    func() string
		expectedMessage string
	}{
		{
			name: testFetchStartCaseNameConstant,
			buildMessage: func() string {
				return formatter.BuildStartedMessage(execshell.ShellCommand{
					Name: execshell.CommandGit,
					Details: execshell.CommandDetails{
						Arguments:        []string{"fetch", testGerritRemoteNameConstant, testChangeReferenceConstant},
						WorkingDirectory: testRepositoryPathConstant,
					},
				})
			},
			expectedMessage: "Fetching refs/changes/01/101/1 from gerrit in /tmp/mirror",
		},
		{
			name: testPushFailureCaseNameConstant,
			buildMessage: func() string {
				return formatter.BuildFailureMessage(execshell.ShellCommand{
					Name: execshell.CommandGit,
					Details: execshell.CommandDetails{
						Arguments:        []string{"push", testTargetRemoteNameConstant, "FETCH_HEAD:refs/heads/changes/01/101/1", "--no-verify"},
						WorkingDirectory: testRepositoryPathConstant,
					},
				}, execshell.ExecutionResult{ExitCode: 1, StandardError: "remote rejected"})
			},
			expectedMessage: "Failed to push FETCH_HEAD:refs/heads/changes/01/101/1 to target from /tmp/mirror (exit code 1: remote rejected)",
		},
		{
			name: testLSRemoteSuccessCaseNameConstant,
			buildMessage: func() string {
				return formatter.BuildSuccessMessage(execshell.ShellCommand{
					Name: execshell.CommandGit,
					Details: execshell.CommandDetails{
						Arguments:        []string{"ls-remote", "--heads", testTargetRemoteNameConstant},
						WorkingDirectory: testRepositoryPathConstant,
					},
				})
			},
			expectedMessage: "Listed branches on target from /tmp/mirror",
		},
		{
			name: testRemoteListStartCaseNameConstant,
			buildMessage: func() string {
				return formatter.BuildStartedMessage(execshell.ShellCommand{
					Name: execshell.CommandGit,
					Details: execshell.CommandDetails{
						Arguments:        []string{"remote", "-v"},
						WorkingDirectory: testRepositoryPathConstant,
					},
				})
			},
			expectedMessage: "Inspecting remotes configured in /tmp/mirror",
		},
		{
			name: testGenericFailureCaseNameConstant,
			buildMessage: func() string {
				return formatter.BuildExecutionFailureMessage(execshell.ShellCommand{
					Name:    execshell.CommandGit,
					Details: execshell.CommandDetails{Arguments: []string{"gc"}},
				}, errors.New("executable not found"))
			},
			expectedMessage: "git gc failed: executable not found",
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			require.Equal(testInstance, testCase.expectedMessage, testCase.buildMessage())
		})
	}
}
