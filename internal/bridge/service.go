package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/temirov/gerrit-bridge/internal/dispatch"
	"github.com/temirov/gerrit-bridge/internal/gerrit"
	"github.com/temirov/gerrit-bridge/internal/mirror"
)

const (
	loggerNotConfiguredMessageConstant    = "logger not configured"
	changeSourceMissingMessageConstant    = "change source not configured"
	branchListerMissingMessageConstant    = "branch lister not configured"
	remoteVerifierMissingMessageConstant  = "remote verifier not configured"
	transferorMissingMessageConstant      = "transferor not configured"
	queryURLMissingMessageConstant        = "gerrit api url must be configured"
	missingEnvironmentTemplateConstant    = "environment variable %s is not set"
	invalidRepositorySpecTemplateConstant = "repository spec %q is not owner/name"
	limitTooLargeTemplateConstant         = "limit %d exceeds the gerrit query maximum of %d"
	invalidTimestampTemplateConstant      = "environment variable %s does not hold a unix timestamp: %w"
	runFailureTemplateConstant            = "synchronization failed: %s"
	branchesFileWriteTemplateConstant     = "unable to write %s: %w"
	runStartedMessageConstant             = "synchronization run started"
	runFinishedMessageConstant            = "synchronization run finished"
	falsePositivesRequeuedMessageConstant = "false positive refs requeued"
	branchesFileWrittenMessageConstant    = "delivered branch inventory written"
	dispatchSkippedMessageConstant        = "workflow dispatch skipped"
	noWorkflowsReasonConstant             = "no workflows configured"
	nothingTransferredReasonConstant      = "nothing transferred"
	githubRepositoryVariableNameConstant  = "GITHUB_REPOSITORY"
	githubTokenVariableNameConstant       = "GHPA_TOKEN"
	gerritPasswordVariableNameConstant    = "GERRIT_PASSWORD"
	lastTimestampVariableNameConstant     = "LAST_TIMESTAMP"
	repositorySpecSeparatorConstant       = "/"
	repositorySpecComponentCountConstant  = 2
	branchesFilePermissionsConstant       = 0o644
	generalFailureExitCodeConstant        = 1
	logFieldQueryURLConstant              = "query_url"
	logFieldRepositoryConstant            = "repository"
	logFieldReasonConstant                = "reason"
	logFieldBranchesFileConstant          = "branches_file"
	logFieldBranchCountConstant           = "branch_count"
	logFieldRequeuedCountConstant         = "requeued_count"
	logFieldTransferredCountConstant      = "transferred_count"
	logFieldDispatchCountConstant         = "dispatch_count"
)

// ErrLoggerNotConfigured indicates the service was constructed without a logger.
var ErrLoggerNotConfigured = errors.New(loggerNotConfiguredMessageConstant)

// ErrChangeSourceNotConfigured indicates the service was constructed without a change source.
var ErrChangeSourceNotConfigured = errors.New(changeSourceMissingMessageConstant)

// ErrBranchListerNotConfigured indicates the service was constructed without a branch lister.
var ErrBranchListerNotConfigured = errors.New(branchListerMissingMessageConstant)

// ErrRemoteVerifierNotConfigured indicates the service was constructed without a remote verifier.
var ErrRemoteVerifierNotConfigured = errors.New(remoteVerifierMissingMessageConstant)

// ErrTransferorNotConfigured indicates the service was constructed without a transferor.
var ErrTransferorNotConfigured = errors.New(transferorMissingMessageConstant)

// ErrQueryURLNotConfigured indicates a run was requested without a Gerrit API URL.
var ErrQueryURLNotConfigured = errors.New(queryURLMissingMessageConstant)

// MissingEnvironmentVariableError reports a required environment variable that is unset.
type MissingEnvironmentVariableError struct {
	Name string
}

// Error names the missing variable.
func (missingError MissingEnvironmentVariableError) Error() string {
	return fmt.Sprintf(missingEnvironmentTemplateConstant, missingError.Name)
}

// InvalidRepositorySpecError reports a GITHUB_REPOSITORY value that is not owner/name.
type InvalidRepositorySpecError struct {
	Value string
}

// Error describes the malformed repository spec.
func (specError InvalidRepositorySpecError) Error() string {
	return fmt.Sprintf(invalidRepositorySpecTemplateConstant, specError.Value)
}

// LimitTooLargeError reports a transfer limit above the Gerrit query maximum.
type LimitTooLargeError struct {
	Limit   int
	Maximum int
}

// Error describes the rejected limit.
func (limitError LimitTooLargeError) Error() string {
	return fmt.Sprintf(limitTooLargeTemplateConstant, limitError.Limit, limitError.Maximum)
}

// RunFailureError wraps a run failure with the process exit code it should produce.
type RunFailureError struct {
	ExitCode int
	Cause    error
}

// Error describes the run failure.
func (runError RunFailureError) Error() string {
	return fmt.Sprintf(runFailureTemplateConstant, runError.Cause)
}

// Unwrap exposes the underlying failure.
func (runError RunFailureError) Unwrap() error {
	return runError.Cause
}

// DeriveExitCode maps a run failure onto a process exit code. Git failures
// propagate the subprocess exit code; everything else exits with one.
func DeriveExitCode(runError error) int {
	transferFailure := mirror.TransferFailedError{}
	if errors.As(runError, &transferFailure) && transferFailure.ExitCode > 0 {
		return transferFailure.ExitCode
	}
	return generalFailureExitCodeConstant
}

// ChangeSource lists the refs of open Gerrit changes.
type ChangeSource interface {
	FetchOpenChanges(executionContext context.Context, queryURL string, requestedLimit int) (gerrit.ChangeSet, error)
}

// CommentEventSource supplements a run with refs requeued through review comments.
type CommentEventSource interface {
	FetchCommentEvents(executionContext context.Context, query gerrit.EventsQuery) ([]gerrit.Event, error)
	FilterFalsePositiveRefs(events []gerrit.Event) []string
}

// BranchLister reports the change branches already present on the target remote.
type BranchLister interface {
	ListChangeBranches(executionContext context.Context, repositoryPath string, remoteName string) ([]mirror.BranchRecord, error)
}

// RemoteChecker verifies the working repository remotes before any transfer.
type RemoteChecker interface {
	VerifyRemotes(executionContext context.Context, repositoryPath string, gerritRemote string, targetRemote string) error
}

// RefTransferor replays pending refs onto the target remote.
type RefTransferor interface {
	Transfer(executionContext context.Context, options mirror.TransferOptions, pendingRefs []string) (mirror.TransferSummary, error)
}

// WorkflowTrigger starts verification workflows for delivered branches.
type WorkflowTrigger interface {
	DispatchWorkflows(executionContext context.Context, request dispatch.DispatchRequest) (dispatch.DispatchSummary, error)
}

// EnvironmentLookup resolves an environment variable, reporting whether it is set.
type EnvironmentLookup func(name string) (string, bool)

// FileWriter persists the delivered branch inventory.
type FileWriter func(filePath string, content []byte) error

// Dependencies carries the collaborators required to build a Service.
// EventSource and WorkflowTrigger are optional; a nil EventSource disables the
// events-log supplement and a nil WorkflowTrigger disables dispatching.
type Dependencies struct {
	Logger            *zap.Logger
	ChangeSource      ChangeSource
	EventSource       CommentEventSource
	BranchLister      BranchLister
	RemoteChecker     RemoteChecker
	Transferor        RefTransferor
	WorkflowTrigger   WorkflowTrigger
	EnvironmentLookup EnvironmentLookup
	FileWriter        FileWriter
}

// RunOptions describes one synchronization run.
type RunOptions struct {
	GerritAPIURL    string
	GerritEventsURL string
	GerritUsername  string
	TransferLimit   int
	RepositoryPath  string
	GerritRemote    string
	TargetRemote    string
	Workflows       []string
	BranchesFile    string
	PushNoVerify    bool
}

// RunResult summarizes a completed synchronization run.
type RunResult struct {
	TransferredRefs []string
	DeferredRefs    []string
	DispatchCount   int
	BranchesFile    string
}

// Service executes synchronization runs.
type Service struct {
	logger            *zap.Logger
	changeSource      ChangeSource
	eventSource       CommentEventSource
	branchLister      BranchLister
	remoteChecker     RemoteChecker
	transferor        RefTransferor
	workflowTrigger   WorkflowTrigger
	environmentLookup EnvironmentLookup
	fileWriter        FileWriter
}

// NewService validates dependencies and constructs a synchronization service.
func NewService(dependencies Dependencies) (*Service, error) {
	if dependencies.Logger == nil {
		return nil, ErrLoggerNotConfigured
	}
	if dependencies.ChangeSource == nil {
		return nil, ErrChangeSourceNotConfigured
	}
	if dependencies.BranchLister == nil {
		return nil, ErrBranchListerNotConfigured
	}
	if dependencies.RemoteChecker == nil {
		return nil, ErrRemoteVerifierNotConfigured
	}
	if dependencies.Transferor == nil {
		return nil, ErrTransferorNotConfigured
	}

	environmentLookup := dependencies.EnvironmentLookup
	if environmentLookup == nil {
		environmentLookup = os.LookupEnv
	}
	fileWriter := dependencies.FileWriter
	if fileWriter == nil {
		fileWriter = func(filePath string, content []byte) error {
			return os.WriteFile(filePath, content, branchesFilePermissionsConstant)
		}
	}

	return &Service{
		logger:            dependencies.Logger,
		changeSource:      dependencies.ChangeSource,
		eventSource:       dependencies.EventSource,
		branchLister:      dependencies.BranchLister,
		remoteChecker:     dependencies.RemoteChecker,
		transferor:        dependencies.Transferor,
		workflowTrigger:   dependencies.WorkflowTrigger,
		environmentLookup: environmentLookup,
		fileWriter:        fileWriter,
	}, nil
}

type repositorySpec struct {
	Owner string
	Name  string
}

// Run performs one synchronization pass. Preflight checks run before any git
// command so a misconfigured environment leaves the repositories untouched.
// A failing transfer keeps already delivered refs, records them in the branch
// inventory, skips dispatching, and surfaces the git exit code.
func (service *Service) Run(executionContext context.Context, options RunOptions) (RunResult, error) {
	if preflightError := service.preflight(options); preflightError != nil {
		return RunResult{}, preflightError
	}

	repository, repositoryError := service.resolveRepositorySpec()
	if repositoryError != nil {
		return RunResult{}, repositoryError
	}

	service.logger.Info(
		runStartedMessageConstant,
		zap.String(logFieldQueryURLConstant, options.GerritAPIURL),
		zap.String(logFieldRepositoryConstant, repository.Owner+repositorySpecSeparatorConstant+repository.Name),
	)

	changeSet, fetchError := service.changeSource.FetchOpenChanges(executionContext, options.GerritAPIURL, options.TransferLimit)
	if fetchError != nil {
		return RunResult{}, fetchError
	}

	if remoteError := service.remoteChecker.VerifyRemotes(executionContext, options.RepositoryPath, options.GerritRemote, options.TargetRemote); remoteError != nil {
		return RunResult{}, remoteError
	}

	existingBranches, listError := service.branchLister.ListChangeBranches(executionContext, options.RepositoryPath, options.TargetRemote)
	if listError != nil {
		return RunResult{}, listError
	}

	backlog, backlogError := mirror.ComputeBacklog(service.logger, changeSet.Refs, existingBranches)
	if backlogError != nil {
		return RunResult{}, backlogError
	}

	pendingRefs, requeueError := service.appendRequeuedRefs(executionContext, options, repository, backlog.PendingRefs)
	if requeueError != nil {
		return RunResult{}, requeueError
	}

	transferSummary, transferError := service.transferor.Transfer(executionContext, mirror.TransferOptions{
		RepositoryPath: options.RepositoryPath,
		GerritRemote:   options.GerritRemote,
		TargetRemote:   options.TargetRemote,
		Limit:          options.TransferLimit,
		PushNoVerify:   options.PushNoVerify,
	}, pendingRefs)

	result := RunResult{
		TransferredRefs: transferSummary.TransferredRefs,
		DeferredRefs:    transferSummary.DeferredRefs,
		BranchesFile:    options.BranchesFile,
	}

	if writeError := service.writeBranchInventory(options.BranchesFile, existingBranches, transferSummary.TransferredRefs); writeError != nil {
		if transferError != nil {
			return result, RunFailureError{ExitCode: DeriveExitCode(transferError), Cause: transferError}
		}
		return result, RunFailureError{ExitCode: generalFailureExitCodeConstant, Cause: writeError}
	}

	if transferError != nil {
		return result, RunFailureError{ExitCode: DeriveExitCode(transferError), Cause: transferError}
	}

	dispatchCount, dispatchError := service.dispatchWorkflows(executionContext, options, repository, transferSummary.TransferredRefs)
	result.DispatchCount = dispatchCount
	if dispatchError != nil {
		return result, RunFailureError{ExitCode: generalFailureExitCodeConstant, Cause: dispatchError}
	}

	service.logger.Info(
		runFinishedMessageConstant,
		zap.Int(logFieldTransferredCountConstant, len(result.TransferredRefs)),
		zap.Int(logFieldDispatchCountConstant, result.DispatchCount),
	)
	return result, nil
}

func (service *Service) preflight(options RunOptions) error {
	if len(strings.TrimSpace(options.GerritAPIURL)) == 0 {
		return ErrQueryURLNotConfigured
	}
	if options.TransferLimit > gerrit.APIMaximumChangeCount {
		return LimitTooLargeError{Limit: options.TransferLimit, Maximum: gerrit.APIMaximumChangeCount}
	}
	if _, tokenError := service.requireEnvironment(githubTokenVariableNameConstant); tokenError != nil {
		return tokenError
	}
	return nil
}

func (service *Service) resolveRepositorySpec() (repositorySpec, error) {
	repositoryValue, repositoryError := service.requireEnvironment(githubRepositoryVariableNameConstant)
	if repositoryError != nil {
		return repositorySpec{}, repositoryError
	}

	components := strings.Split(repositoryValue, repositorySpecSeparatorConstant)
	if len(components) != repositorySpecComponentCountConstant || len(strings.TrimSpace(components[0])) == 0 || len(strings.TrimSpace(components[1])) == 0 {
		return repositorySpec{}, InvalidRepositorySpecError{Value: repositoryValue}
	}
	return repositorySpec{Owner: components[0], Name: components[1]}, nil
}

func (service *Service) requireEnvironment(variableName string) (string, error) {
	value, variableSet := service.environmentLookup(variableName)
	if !variableSet || len(strings.TrimSpace(value)) == 0 {
		return "", MissingEnvironmentVariableError{Name: variableName}
	}
	return strings.TrimSpace(value), nil
}

// appendRequeuedRefs adds refs whose verification failures were marked false
// positives. Those refs bypass the delivered-branch filter so their workflows
// run again even though the branch already exists.
func (service *Service) appendRequeuedRefs(executionContext context.Context, options RunOptions, repository repositorySpec, pendingRefs []string) ([]string, error) {
	if service.eventSource == nil || len(options.GerritEventsURL) == 0 {
		return pendingRefs, nil
	}

	gerritPassword, passwordError := service.requireEnvironment(gerritPasswordVariableNameConstant)
	if passwordError != nil {
		return nil, passwordError
	}
	timestampValue, timestampError := service.requireEnvironment(lastTimestampVariableNameConstant)
	if timestampError != nil {
		return nil, timestampError
	}
	lastTimestamp, parseError := strconv.ParseInt(timestampValue, 10, 64)
	if parseError != nil {
		return nil, fmt.Errorf(invalidTimestampTemplateConstant, lastTimestampVariableNameConstant, parseError)
	}

	events, eventsError := service.eventSource.FetchCommentEvents(executionContext, gerrit.EventsQuery{
		EventsLogURL:    options.GerritEventsURL,
		Username:        options.GerritUsername,
		Password:        gerritPassword,
		LastTimestamp:   lastTimestamp,
		RepositoryOwner: repository.Owner,
		RepositoryName:  repository.Name,
	})
	if eventsError != nil {
		return nil, eventsError
	}

	requeuedRefs := service.eventSource.FilterFalsePositiveRefs(events)
	alreadyPending := make(map[string]struct{}, len(pendingRefs))
	for _, pendingRef := range pendingRefs {
		alreadyPending[pendingRef] = struct{}{}
	}

	appendedCount := 0
	for _, requeuedRef := range requeuedRefs {
		if _, pending := alreadyPending[requeuedRef]; pending {
			continue
		}
		pendingRefs = append(pendingRefs, requeuedRef)
		appendedCount++
	}

	if appendedCount > 0 {
		service.logger.Info(falsePositivesRequeuedMessageConstant, zap.Int(logFieldRequeuedCountConstant, appendedCount))
	}
	return pendingRefs, nil
}

// writeBranchInventory records every change branch now present on the target,
// the previously delivered ones plus the refs moved during this run.
func (service *Service) writeBranchInventory(branchesFilePath string, existingBranches []mirror.BranchRecord, transferredRefs []string) error {
	branchPaths := map[string]struct{}{}
	for _, branchRecord := range existingBranches {
		branchPaths[branchRecord.Ref.BranchPath()] = struct{}{}
	}
	for _, transferredRef := range transferredRefs {
		changeRef, parseError := mirror.ParseGerritRef(transferredRef)
		if parseError != nil {
			return parseError
		}
		branchPaths[changeRef.BranchPath()] = struct{}{}
	}

	sortedBranchPaths := make([]string, 0, len(branchPaths))
	for branchPath := range branchPaths {
		sortedBranchPaths = append(sortedBranchPaths, branchPath)
	}
	sort.Strings(sortedBranchPaths)

	inventoryContent, marshalError := json.MarshalIndent(sortedBranchPaths, "", "  ")
	if marshalError != nil {
		return marshalError
	}

	if writeError := service.fileWriter(branchesFilePath, inventoryContent); writeError != nil {
		return fmt.Errorf(branchesFileWriteTemplateConstant, branchesFilePath, writeError)
	}

	service.logger.Info(
		branchesFileWrittenMessageConstant,
		zap.String(logFieldBranchesFileConstant, branchesFilePath),
		zap.Int(logFieldBranchCountConstant, len(sortedBranchPaths)),
	)
	return nil
}

func (service *Service) dispatchWorkflows(executionContext context.Context, options RunOptions, repository repositorySpec, transferredRefs []string) (int, error) {
	if service.workflowTrigger == nil || len(options.Workflows) == 0 {
		service.logger.Info(dispatchSkippedMessageConstant, zap.String(logFieldReasonConstant, noWorkflowsReasonConstant))
		return 0, nil
	}
	if len(transferredRefs) == 0 {
		service.logger.Info(dispatchSkippedMessageConstant, zap.String(logFieldReasonConstant, nothingTransferredReasonConstant))
		return 0, nil
	}

	dispatchSummary, dispatchError := service.workflowTrigger.DispatchWorkflows(executionContext, dispatch.DispatchRequest{
		RepositoryOwner:   repository.Owner,
		RepositoryName:    repository.Name,
		WorkflowFileNames: options.Workflows,
		TransferredRefs:   transferredRefs,
	})
	return dispatchSummary.DispatchCount, dispatchError
}
