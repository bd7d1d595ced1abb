package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/go-github/v60/github"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const (
	loggerNotConfiguredMessageConstant     = "logger not configured"
	dispatcherNotConfiguredMessageConstant = "workflow dispatcher not configured"
	dispatchFailureTemplateConstant        = "unable to dispatch %s for %s: %s"
	dispatchTargetBranchConstant           = "main"
	branchInputNameConstant                = "branch"
	refPrefixConstant                      = "refs/"
	workflowDispatchedMessageConstant      = "workflow dispatched"
	dispatchSummaryMessageConstant         = "workflow dispatch finished"
	logFieldWorkflowConstant               = "workflow"
	logFieldBranchConstant                 = "branch"
	logFieldDispatchCountConstant          = "dispatch_count"
)

// ErrLoggerNotConfigured indicates the trigger was constructed without a logger.
var ErrLoggerNotConfigured = errors.New(loggerNotConfiguredMessageConstant)

// ErrDispatcherNotConfigured indicates the trigger was constructed without a dispatcher.
var ErrDispatcherNotConfigured = errors.New(dispatcherNotConfiguredMessageConstant)

// DispatchFailedError reports a workflow run that could not be started.
type DispatchFailedError struct {
	WorkflowFileName string
	Branch           string
	Cause            error
}

// Error describes the failed dispatch.
func (dispatchError DispatchFailedError) Error() string {
	return fmt.Sprintf(dispatchFailureTemplateConstant, dispatchError.WorkflowFileName, dispatchError.Branch, dispatchError.Cause)
}

// Unwrap exposes the underlying API error.
func (dispatchError DispatchFailedError) Unwrap() error {
	return dispatchError.Cause
}

// WorkflowDispatcher starts workflow runs identified by their file name.
type WorkflowDispatcher interface {
	CreateWorkflowDispatchEventByFileName(executionContext context.Context, owner string, repository string, workflowFileName string, event github.CreateWorkflowDispatchEventRequest) (*github.Response, error)
}

// DispatchRequest names the repository, the workflows to start, and the
// freshly delivered refs each workflow should run against.
type DispatchRequest struct {
	RepositoryOwner   string
	RepositoryName    string
	WorkflowFileNames []string
	TransferredRefs   []string
}

// DispatchSummary counts the workflow runs started during one dispatch pass.
type DispatchSummary struct {
	DispatchCount int
}

// Trigger starts workflow runs for delivered change branches.
type Trigger struct {
	logger     *zap.Logger
	dispatcher WorkflowDispatcher
}

// NewTrigger constructs a Trigger from the supplied logger and dispatcher.
func NewTrigger(logger *zap.Logger, dispatcher WorkflowDispatcher) (*Trigger, error) {
	if logger == nil {
		return nil, ErrLoggerNotConfigured
	}
	if dispatcher == nil {
		return nil, ErrDispatcherNotConfigured
	}
	return &Trigger{logger: logger, dispatcher: dispatcher}, nil
}

// NewGitHubClient builds an authenticated GitHub API client from a personal
// access token.
func NewGitHubClient(executionContext context.Context, accessToken string) *github.Client {
	tokenSource := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken})
	return github.NewClient(oauth2.NewClient(executionContext, tokenSource))
}

// DispatchWorkflows starts every configured workflow once per transferred ref.
// The workflow runs on the default branch and receives the change branch
// through the branch input. A failing dispatch stops the pass; runs already
// started stay started, and the affected branch is retried only when its ref
// is requeued upstream.
func (trigger *Trigger) DispatchWorkflows(executionContext context.Context, request DispatchRequest) (DispatchSummary, error) {
	summary := DispatchSummary{}
	for _, transferredRef := range request.TransferredRefs {
		branchInput := strings.TrimPrefix(transferredRef, refPrefixConstant)
		for _, workflowFileName := range request.WorkflowFileNames {
			dispatchEvent := github.CreateWorkflowDispatchEventRequest{
				Ref:    dispatchTargetBranchConstant,
				Inputs: map[string]interface{}{branchInputNameConstant: branchInput},
			}

			_, dispatchError := trigger.dispatcher.CreateWorkflowDispatchEventByFileName(
				executionContext,
				request.RepositoryOwner,
				request.RepositoryName,
				workflowFileName,
				dispatchEvent,
			)
			if dispatchError != nil {
				return summary, DispatchFailedError{WorkflowFileName: workflowFileName, Branch: branchInput, Cause: dispatchError}
			}

			summary.DispatchCount++
			trigger.logger.Info(
				workflowDispatchedMessageConstant,
				zap.String(logFieldWorkflowConstant, workflowFileName),
				zap.String(logFieldBranchConstant, branchInput),
			)
		}
	}

	trigger.logger.Info(dispatchSummaryMessageConstant, zap.Int(logFieldDispatchCountConstant, summary.DispatchCount))
	return summary, nil
}
