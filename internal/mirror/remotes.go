package mirror

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/temirov/gerrit-bridge/internal/execshell"
)

const (
	remoteSubcommandConstant             = "remote"
	remoteVerboseFlagConstant            = "-v"
	remoteFetchCapabilityConstant        = "fetch"
	remotePushCapabilityConstant         = "push"
	remoteCapabilityMarkerTemplateConst  = "(%s)"
	remoteListingFailedTemplateConstant  = "unable to inspect remotes in %s: %w"
	repositoryNotUsableTemplateConstant  = "repository %s has no %s-capable remote named %s"
	remotesVerifiedMessageConstant       = "repository remotes verified"
	logFieldRepositoryPathConstant       = "repository_path"
	logFieldGerritRemoteConstant         = "gerrit_remote"
	logFieldTargetRemoteConstant         = "target_remote"
	remoteLineMinimumComponentCountConst = 3
)

// RepositoryNotUsableError reports a working repository lacking a required remote capability.
type RepositoryNotUsableError struct {
	RepositoryPath string
	RemoteName     string
	Capability     string
}

// Error describes the missing remote capability.
func (notUsableError RepositoryNotUsableError) Error() string {
	return fmt.Sprintf(repositoryNotUsableTemplateConstant, notUsableError.RepositoryPath, notUsableError.Capability, notUsableError.RemoteName)
}

// RemoteVerifier checks that a working repository carries the remotes a
// transfer run needs before any ref is touched.
type RemoteVerifier struct {
	logger      *zap.Logger
	gitExecutor GitExecutor
}

// NewRemoteVerifier constructs a RemoteVerifier from the supplied logger and git executor.
func NewRemoteVerifier(logger *zap.Logger, gitExecutor GitExecutor) (*RemoteVerifier, error) {
	if logger == nil {
		return nil, ErrLoggerNotConfigured
	}
	if gitExecutor == nil {
		return nil, ErrGitExecutorNotConfigured
	}
	return &RemoteVerifier{logger: logger, gitExecutor: gitExecutor}, nil
}

// VerifyRemotes confirms the repository can fetch from the Gerrit remote and
// push to the target remote. The check runs before any transfer so a
// misconfigured repository fails fast instead of mid-run.
func (verifier *RemoteVerifier) VerifyRemotes(executionContext context.Context, repositoryPath string, gerritRemote string, targetRemote string) error {
	if len(strings.TrimSpace(repositoryPath)) == 0 {
		return ErrRepositoryPathRequired
	}
	if len(strings.TrimSpace(gerritRemote)) == 0 || len(strings.TrimSpace(targetRemote)) == 0 {
		return ErrRemoteNameRequired
	}

	executionResult, executionError := verifier.gitExecutor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        []string{remoteSubcommandConstant, remoteVerboseFlagConstant},
		WorkingDirectory: repositoryPath,
	})
	if executionError != nil {
		return fmt.Errorf(remoteListingFailedTemplateConstant, repositoryPath, executionError)
	}

	remoteCapabilities := parseRemoteCapabilities(executionResult.StandardOutput)
	if !remoteCapabilities[capabilityKey(gerritRemote, remoteFetchCapabilityConstant)] {
		return RepositoryNotUsableError{RepositoryPath: repositoryPath, RemoteName: gerritRemote, Capability: remoteFetchCapabilityConstant}
	}
	if !remoteCapabilities[capabilityKey(targetRemote, remotePushCapabilityConstant)] {
		return RepositoryNotUsableError{RepositoryPath: repositoryPath, RemoteName: targetRemote, Capability: remotePushCapabilityConstant}
	}

	verifier.logger.Info(
		remotesVerifiedMessageConstant,
		zap.String(logFieldRepositoryPathConstant, repositoryPath),
		zap.String(logFieldGerritRemoteConstant, gerritRemote),
		zap.String(logFieldTargetRemoteConstant, targetRemote),
	)
	return nil
}

func parseRemoteCapabilities(remoteListing string) map[string]bool {
	remoteCapabilities := map[string]bool{}
	for _, line := range strings.Split(remoteListing, "\n") {
		components := strings.Fields(strings.TrimSpace(line))
		if len(components) < remoteLineMinimumComponentCountConst {
			continue
		}

		remoteName := components[0]
		capabilityMarker := components[len(components)-1]
		for _, capability := range []string{remoteFetchCapabilityConstant, remotePushCapabilityConstant} {
			if capabilityMarker == fmt.Sprintf(remoteCapabilityMarkerTemplateConst, capability) {
				remoteCapabilities[capabilityKey(remoteName, capability)] = true
			}
		}
	}
	return remoteCapabilities
}

func capabilityKey(remoteName string, capability string) string {
	return remoteName + " " + capability
}
