package utils_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temirov/gerrit-bridge/internal/utils"
)

const (
	testUnsupportedLevelCaseNameConstant  = "unsupported_level"
	testUnsupportedFormatCaseNameConstant = "unsupported_format"
	testStructuredFormatCaseNameConstant  = "structured_format"
	testConsoleFormatCaseNameConstant     = "console_format"
	testLogFileNameConstant               = "bridge.log"
	testLogMessageConstant                = "file sink message"
)

func TestCreateLoggerValidatesInputs(testInstance *testing.T) {
	testCases := []struct {
		name          string
		logLevel      utils.LogLevel
		logFormat     utils.LogFormat
		expectFailure bool
	}{
		{
			name:          testUnsupportedLevelCaseNameConstant,
			logLevel:      utils.LogLevel("verbose"),
			logFormat:     utils.LogFormatStructured,
			expectFailure: true,
		},
		{
			name:          testUnsupportedFormatCaseNameConstant,
			logLevel:      utils.LogLevelInfo,
			logFormat:     utils.LogFormat("xml"),
			expectFailure: true,
		},
		{
			name:      testStructuredFormatCaseNameConstant,
			logLevel:  utils.LogLevelInfo,
			logFormat: utils.LogFormatStructured,
		},
		{
			name:      testConsoleFormatCaseNameConstant,
			logLevel:  utils.LogLevelDebug,
			logFormat: utils.LogFormatConsole,
		},
	}

	loggerFactory := utils.NewLoggerFactory()
	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			logger, creationError := loggerFactory.CreateLogger(testCase.logLevel, testCase.logFormat, "")
			if testCase.expectFailure {
				require.Error(testInstance, creationError)
				require.Nil(testInstance, logger)
				return
			}
			require.NoError(testInstance, creationError)
			require.NotNil(testInstance, logger)
		})
	}
}

func TestCreateLoggerTeesRecordsIntoLogFile(testInstance *testing.T) {
	logFilePath := filepath.Join(testInstance.TempDir(), testLogFileNameConstant)

	loggerFactory := utils.NewLoggerFactory()
	logger, creationError := loggerFactory.CreateLogger(utils.LogLevelInfo, utils.LogFormatStructured, logFilePath)
	require.NoError(testInstance, creationError)

	logger.Info(testLogMessageConstant)
	_ = logger.Sync()

	logFileContents, readError := os.ReadFile(logFilePath)
	require.NoError(testInstance, readError)
	require.True(testInstance, strings.Contains(string(logFileContents), testLogMessageConstant))
}
