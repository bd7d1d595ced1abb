package cli

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewApplicationRegistersSyncCommand(testInstance *testing.T) {
	application := NewApplication()
	require.NotNil(testInstance, application.rootCommand)

	commandNames := []string{}
	for _, registeredCommand := range application.rootCommand.Commands() {
		commandNames = append(commandNames, registeredCommand.Name())
	}
	require.Contains(testInstance, commandNames, "sync")
}

func TestNewApplicationDeclaresPersistentFlags(testInstance *testing.T) {
	application := NewApplication()

	persistentFlags := application.rootCommand.PersistentFlags()
	for _, flagName := range []string{"config", "log-level", "log-format", "log-file"} {
		require.NotNil(testInstance, persistentFlags.Lookup(flagName), flagName)
	}
}

func TestInitializeConfigurationAppliesEmbeddedDefaults(testInstance *testing.T) {
	application := NewApplication()

	require.NoError(testInstance, application.initializeConfiguration(application.rootCommand))
	require.Equal(testInstance, "info", application.configuration.Common.LogLevel)
	require.Equal(testInstance, "structured", application.configuration.Common.LogFormat)
	require.Equal(testInstance, 5, application.configuration.Sync.TransferLimit)
	require.Equal(testInstance, "gerrit", application.configuration.Sync.GerritRemote)
	require.Equal(testInstance, "target", application.configuration.Sync.TargetRemote)
	require.Equal(testInstance, "branches.json", application.configuration.Sync.BranchesFile)
	require.True(testInstance, application.configuration.Sync.PushNoVerify)
	require.NotNil(testInstance, application.logger)
}
