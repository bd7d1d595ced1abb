package mirror

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/temirov/gerrit-bridge/internal/execshell"
)

const (
	loggerNotConfiguredMessageConstant  = "logger not configured"
	transferFailureTemplateConstant     = "unable to transfer %s: %s"
	fetchSubcommandConstant             = "fetch"
	pushSubcommandConstant              = "push"
	fetchHeadRefNameConstant            = "FETCH_HEAD"
	pushRefspecTemplateConstant         = "%s:%s"
	pushNoVerifyFlagConstant            = "--no-verify"
	transferLimitAppliedMessageConstant = "transfer limit applied"
	refTransferredMessageConstant       = "ref transferred"
	transferSummaryMessageConstant      = "transfer finished"
	logFieldRefConstant                 = "ref"
	logFieldBranchConstant              = "branch"
	logFieldLimitConstant               = "limit"
	logFieldTransferredCountConstant    = "transferred_count"
	logFieldSkippedCountConstant        = "skipped_count"
)

// ErrLoggerNotConfigured indicates a mirror component was constructed without a logger.
var ErrLoggerNotConfigured = errors.New(loggerNotConfiguredMessageConstant)

// TransferFailedError reports a ref whose fetch or push did not complete.
// ExitCode carries the failing git exit code, or zero when git never ran.
type TransferFailedError struct {
	Ref      string
	ExitCode int
	Cause    error
}

// Error describes the failed transfer.
func (transferError TransferFailedError) Error() string {
	return fmt.Sprintf(transferFailureTemplateConstant, transferError.Ref, transferError.Cause)
}

// Unwrap exposes the underlying git error.
func (transferError TransferFailedError) Unwrap() error {
	return transferError.Cause
}

// TransferOptions describes one transfer run over a local working repository.
type TransferOptions struct {
	RepositoryPath string
	GerritRemote   string
	TargetRemote   string
	Limit          int
	PushNoVerify   bool
}

// TransferSummary reports the refs moved during a run and those deferred by the limit.
type TransferSummary struct {
	TransferredRefs []string
	DeferredRefs    []string
}

// Transferor replays Gerrit change refs as branches on the target remote.
type Transferor struct {
	logger      *zap.Logger
	gitExecutor GitExecutor
}

// NewTransferor constructs a Transferor from the supplied logger and git executor.
func NewTransferor(logger *zap.Logger, gitExecutor GitExecutor) (*Transferor, error) {
	if logger == nil {
		return nil, ErrLoggerNotConfigured
	}
	if gitExecutor == nil {
		return nil, ErrGitExecutorNotConfigured
	}
	return &Transferor{logger: logger, gitExecutor: gitExecutor}, nil
}

// Transfer fetches each pending ref from the Gerrit remote and pushes the
// fetched commit to its change branch on the target remote. Refs beyond the
// limit are deferred to the next run. A failing ref stops the run; refs already
// transferred stay transferred and appear in the returned summary.
func (transferor *Transferor) Transfer(executionContext context.Context, options TransferOptions, pendingRefs []string) (TransferSummary, error) {
	if len(strings.TrimSpace(options.RepositoryPath)) == 0 {
		return TransferSummary{}, ErrRepositoryPathRequired
	}
	if len(strings.TrimSpace(options.GerritRemote)) == 0 || len(strings.TrimSpace(options.TargetRemote)) == 0 {
		return TransferSummary{}, ErrRemoteNameRequired
	}

	selectedRefs := pendingRefs
	summary := TransferSummary{TransferredRefs: []string{}, DeferredRefs: []string{}}
	if options.Limit > 0 && len(pendingRefs) > options.Limit {
		selectedRefs = pendingRefs[:options.Limit]
		summary.DeferredRefs = append(summary.DeferredRefs, pendingRefs[options.Limit:]...)
		transferor.logger.Info(
			transferLimitAppliedMessageConstant,
			zap.Int(logFieldLimitConstant, options.Limit),
			zap.Int(logFieldSkippedCountConstant, len(summary.DeferredRefs)),
		)
	}

	for _, pendingRef := range selectedRefs {
		changeRef, parseError := ParseGerritRef(pendingRef)
		if parseError != nil {
			return summary, TransferFailedError{Ref: pendingRef, Cause: parseError}
		}

		if transferError := transferor.transferRef(executionContext, options, pendingRef, changeRef); transferError != nil {
			return summary, transferError
		}

		summary.TransferredRefs = append(summary.TransferredRefs, pendingRef)
		transferor.logger.Info(
			refTransferredMessageConstant,
			zap.String(logFieldRefConstant, pendingRef),
			zap.String(logFieldBranchConstant, changeRef.BranchPath()),
		)
	}

	transferor.logger.Info(
		transferSummaryMessageConstant,
		zap.Int(logFieldTransferredCountConstant, len(summary.TransferredRefs)),
		zap.Int(logFieldSkippedCountConstant, len(summary.DeferredRefs)),
	)
	return summary, nil
}

func (transferor *Transferor) transferRef(executionContext context.Context, options TransferOptions, pendingRef string, changeRef ChangeRef) error {
	_, fetchError := transferor.gitExecutor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        []string{fetchSubcommandConstant, options.GerritRemote, pendingRef},
		WorkingDirectory: options.RepositoryPath,
	})
	if fetchError != nil {
		return wrapTransferFailure(pendingRef, fetchError)
	}

	pushArguments := []string{pushSubcommandConstant, options.TargetRemote, fmt.Sprintf(pushRefspecTemplateConstant, fetchHeadRefNameConstant, changeRef.BranchRef())}
	if options.PushNoVerify {
		pushArguments = append(pushArguments, pushNoVerifyFlagConstant)
	}
	_, pushError := transferor.gitExecutor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        pushArguments,
		WorkingDirectory: options.RepositoryPath,
	})
	if pushError != nil {
		return wrapTransferFailure(pendingRef, pushError)
	}
	return nil
}

func wrapTransferFailure(pendingRef string, gitError error) error {
	failure := TransferFailedError{Ref: pendingRef, Cause: gitError}
	commandFailure := execshell.CommandFailedError{}
	if errors.As(gitError, &commandFailure) {
		failure.ExitCode = commandFailure.Result.ExitCode
	}
	return failure
}
