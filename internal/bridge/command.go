package bridge

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/temirov/gerrit-bridge/internal/dispatch"
	"github.com/temirov/gerrit-bridge/internal/execshell"
	"github.com/temirov/gerrit-bridge/internal/gerrit"
	"github.com/temirov/gerrit-bridge/internal/mirror"
)

const (
	commandUseConstant                    = "sync"
	commandShortDescriptionConstant       = "Mirror open Gerrit changes onto the target remote and start their workflows"
	commandLongDescriptionConstant        = "sync queries Gerrit for open changes, pushes the patchset refs not yet delivered as change branches on the target remote, records the delivered branches, and dispatches the configured GitHub Actions workflows for each fresh branch."
	commandExecutionErrorTemplateConstant = "synchronization failed: %w"
	unexpectedArgumentsMessageConstant    = "sync does not accept positional arguments"
	flagGerritAPIURLNameConstant          = "gerrit-api-url"
	flagGerritAPIURLDescriptionConstant   = "Gerrit change query URL returning open changes with current revisions"
	flagGerritEventsURLNameConstant       = "gerrit-events-url"
	flagGerritEventsURLDescription        = "Gerrit events-log plugin URL used to requeue false positive verification failures"
	flagGerritUsernameNameConstant        = "gerrit-username"
	flagGerritUsernameDescriptionConst    = "Gerrit account used to read the events log"
	flagLimitNameConstant                 = "limit"
	flagLimitDescriptionConstant          = "Maximum number of refs transferred per run"
	flagRepositoryNameConstant            = "repository"
	flagRepositoryDescriptionConstant     = "Path of the local working repository carrying both remotes"
	flagGerritRemoteNameConstant          = "gerrit-remote"
	flagGerritRemoteDescriptionConstant   = "Name of the remote pointing at Gerrit"
	flagTargetRemoteNameConstant          = "target-remote"
	flagTargetRemoteDescriptionConstant   = "Name of the remote receiving change branches"
	flagWorkflowNameConstant              = "workflow"
	flagWorkflowDescriptionConstant       = "Workflow file dispatched per delivered branch (repeatable)"
	flagBranchesFileNameConstant          = "branches-file"
	flagBranchesFileDescriptionConstant   = "Path of the delivered branch inventory file"
	flagPushNoVerifyNameConstant          = "push-no-verify"
	flagPushNoVerifyDescriptionConstant   = "Skip pre-push hooks when delivering change branches"
)

var errUnexpectedArguments = errors.New(unexpectedArgumentsMessageConstant)

// LoggerProvider supplies a zap logger instance.
type LoggerProvider func() *zap.Logger

// ConfigurationProvider supplies the sync configuration resolved from files and environment.
type ConfigurationProvider func() CommandConfiguration

// CommandBuilder assembles the Cobra command for synchronization runs.
type CommandBuilder struct {
	LoggerProvider        LoggerProvider
	ConfigurationProvider ConfigurationProvider
	Service               *Service
}

// Build constructs the sync command.
func (builder *CommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   commandUseConstant,
		Short: commandShortDescriptionConstant,
		Long:  commandLongDescriptionConstant,
		RunE:  builder.run,
	}

	defaults := DefaultCommandConfiguration()
	command.Flags().String(flagGerritAPIURLNameConstant, "", flagGerritAPIURLDescriptionConstant)
	command.Flags().String(flagGerritEventsURLNameConstant, "", flagGerritEventsURLDescription)
	command.Flags().String(flagGerritUsernameNameConstant, "", flagGerritUsernameDescriptionConst)
	command.Flags().Int(flagLimitNameConstant, defaults.TransferLimit, flagLimitDescriptionConstant)
	command.Flags().String(flagRepositoryNameConstant, "", flagRepositoryDescriptionConstant)
	command.Flags().String(flagGerritRemoteNameConstant, defaults.GerritRemote, flagGerritRemoteDescriptionConstant)
	command.Flags().String(flagTargetRemoteNameConstant, defaults.TargetRemote, flagTargetRemoteDescriptionConstant)
	command.Flags().StringArray(flagWorkflowNameConstant, nil, flagWorkflowDescriptionConstant)
	command.Flags().String(flagBranchesFileNameConstant, defaults.BranchesFile, flagBranchesFileDescriptionConstant)
	command.Flags().Bool(flagPushNoVerifyNameConstant, defaults.PushNoVerify, flagPushNoVerifyDescriptionConstant)

	return command, nil
}

func (builder *CommandBuilder) run(command *cobra.Command, arguments []string) error {
	if len(arguments) > 0 {
		return errUnexpectedArguments
	}

	options := builder.resolveOptions(command)
	logger := builder.resolveLogger()

	service, serviceError := builder.resolveService(logger)
	if serviceError != nil {
		return serviceError
	}

	_, runError := service.Run(command.Context(), options)
	if runError != nil {
		runFailure := RunFailureError{}
		if errors.As(runError, &runFailure) {
			return runError
		}
		return RunFailureError{ExitCode: DeriveExitCode(runError), Cause: fmt.Errorf(commandExecutionErrorTemplateConstant, runError)}
	}

	return nil
}

// resolveOptions layers explicit flags over the provided configuration.
func (builder *CommandBuilder) resolveOptions(command *cobra.Command) RunOptions {
	configuration := DefaultCommandConfiguration()
	if builder.ConfigurationProvider != nil {
		configuration = builder.ConfigurationProvider()
	}
	configuration = configuration.sanitize()

	flags := command.Flags()
	if flags.Changed(flagGerritAPIURLNameConstant) {
		configuration.GerritAPIURL, _ = flags.GetString(flagGerritAPIURLNameConstant)
	}
	if flags.Changed(flagGerritEventsURLNameConstant) {
		configuration.GerritEventsURL, _ = flags.GetString(flagGerritEventsURLNameConstant)
	}
	if flags.Changed(flagGerritUsernameNameConstant) {
		configuration.GerritUsername, _ = flags.GetString(flagGerritUsernameNameConstant)
	}
	if flags.Changed(flagLimitNameConstant) {
		configuration.TransferLimit, _ = flags.GetInt(flagLimitNameConstant)
	}
	if flags.Changed(flagRepositoryNameConstant) {
		configuration.RepositoryPath, _ = flags.GetString(flagRepositoryNameConstant)
	}
	if flags.Changed(flagGerritRemoteNameConstant) {
		configuration.GerritRemote, _ = flags.GetString(flagGerritRemoteNameConstant)
	}
	if flags.Changed(flagTargetRemoteNameConstant) {
		configuration.TargetRemote, _ = flags.GetString(flagTargetRemoteNameConstant)
	}
	if flags.Changed(flagWorkflowNameConstant) {
		configuration.Workflows, _ = flags.GetStringArray(flagWorkflowNameConstant)
	}
	if flags.Changed(flagBranchesFileNameConstant) {
		configuration.BranchesFile, _ = flags.GetString(flagBranchesFileNameConstant)
	}
	if flags.Changed(flagPushNoVerifyNameConstant) {
		configuration.PushNoVerify, _ = flags.GetBool(flagPushNoVerifyNameConstant)
	}
	configuration = configuration.sanitize()

	return RunOptions{
		GerritAPIURL:    configuration.GerritAPIURL,
		GerritEventsURL: configuration.GerritEventsURL,
		GerritUsername:  configuration.GerritUsername,
		TransferLimit:   configuration.TransferLimit,
		RepositoryPath:  configuration.RepositoryPath,
		GerritRemote:    configuration.GerritRemote,
		TargetRemote:    configuration.TargetRemote,
		Workflows:       configuration.Workflows,
		BranchesFile:    configuration.BranchesFile,
		PushNoVerify:    configuration.PushNoVerify,
	}
}

func (builder *CommandBuilder) resolveLogger() *zap.Logger {
	if builder.LoggerProvider == nil {
		return zap.NewNop()
	}

	logger := builder.LoggerProvider()
	if logger == nil {
		return zap.NewNop()
	}

	return logger
}

// resolveService wires the production collaborators when no service was injected.
func (builder *CommandBuilder) resolveService(logger *zap.Logger) (*Service, error) {
	if builder.Service != nil {
		return builder.Service, nil
	}

	shellExecutor, executorError := execshell.NewShellExecutor(logger, execshell.NewOSCommandRunner())
	if executorError != nil {
		return nil, executorError
	}

	changeSource, changeSourceError := gerrit.NewClient(logger, nil)
	if changeSourceError != nil {
		return nil, changeSourceError
	}

	inventory, inventoryError := mirror.NewInventory(logger, shellExecutor)
	if inventoryError != nil {
		return nil, inventoryError
	}

	remoteVerifier, verifierError := mirror.NewRemoteVerifier(logger, shellExecutor)
	if verifierError != nil {
		return nil, verifierError
	}

	transferor, transferorError := mirror.NewTransferor(logger, shellExecutor)
	if transferorError != nil {
		return nil, transferorError
	}

	dependencies := Dependencies{
		Logger:        logger,
		ChangeSource:  changeSource,
		BranchLister:  inventory,
		RemoteChecker: remoteVerifier,
		Transferor:    transferor,
	}

	if accessToken, tokenSet := os.LookupEnv(githubTokenVariableNameConstant); tokenSet && len(accessToken) > 0 {
		githubClient := dispatch.NewGitHubClient(context.Background(), accessToken)

		workflowTrigger, triggerError := dispatch.NewTrigger(logger, githubClient.Actions)
		if triggerError != nil {
			return nil, triggerError
		}
		dependencies.WorkflowTrigger = workflowTrigger

		eventSource, eventSourceError := gerrit.NewEventsClient(logger, nil, githubClient.Actions, nil)
		if eventSourceError != nil {
			return nil, eventSourceError
		}
		dependencies.EventSource = eventSource
	}

	return NewService(dependencies)
}
