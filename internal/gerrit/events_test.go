package gerrit_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-github/v60/github"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/temirov/gerrit-bridge/internal/gerrit"
)

const (
	testGerritUsernameConstant      = "verification-bot"
	testGerritPasswordConstant      = "http-password"
	testRepositoryOwnerConstant     = "example"
	testRepositoryNameConstant      = "ci"
	testLastTimestampConstant       = int64(1700000000)
	testFrozenTimestampConstant     = int64(1700000100)
	testFalsePositiveRefConstant    = "refs/changes/03/303/2"
	testCommentEventPayloadConstant = `{"type":"comment-added","comment":"This is a false positive, please re-run","patchSet":{"ref":"refs/changes/03/303/2"}}` + "\n" +
		`{"type":"comment-added","comment":"looks good to me","patchSet":{"ref":"refs/changes/04/404/1"}}` + "\n" +
		`{"type":"change-merged","patchSet":{"ref":"refs/changes/05/505/1"}}`
)

type frozenClock struct {
	frozenTime time.Time
}

func (clock frozenClock) Now() time.Time {
	return clock.frozenTime
}

type recordingVariableUpdater struct {
	recordedOwner      string
	recordedRepository string
	recordedVariable   *github.ActionsVariable
	updateError        error
}

func (updater *recordingVariableUpdater) UpdateRepoVariable(_ context.Context, owner string, repository string, variable *github.ActionsVariable) (*github.Response, error) {
	updater.recordedOwner = owner
	updater.recordedRepository = repository
	updater.recordedVariable = variable
	return nil, updater.updateError
}

func TestNewEventsClientValidatesDependencies(testInstance *testing.T) {
	_, creationError := gerrit.NewEventsClient(nil, nil, &recordingVariableUpdater{}, nil)
	require.ErrorIs(testInstance, creationError, gerrit.ErrLoggerNotConfigured)

	_, creationError = gerrit.NewEventsClient(zap.NewNop(), nil, nil, nil)
	require.ErrorIs(testInstance, creationError, gerrit.ErrVariableUpdaterNotConfigured)
}

func TestFetchCommentEventsQueriesWindowAndSavesCheckpoint(testInstance *testing.T) {
	var requestedURL string
	var requestedUsername string
	var requestedPassword string
	server := httptest.NewServer(http.HandlerFunc(func(responseWriter http.ResponseWriter, request *http.Request) {
		requestedURL = request.URL.String()
		requestedUsername, requestedPassword, _ = request.BasicAuth()
		_, _ = responseWriter.Write([]byte(testCommentEventPayloadConstant))
	}))
	testInstance.Cleanup(server.Close)

	variableUpdater := &recordingVariableUpdater{}
	eventsClient, creationError := gerrit.NewEventsClient(
		zap.NewNop(),
		server.Client(),
		variableUpdater,
		frozenClock{frozenTime: time.Unix(testFrozenTimestampConstant, 0)},
	)
	require.NoError(testInstance, creationError)

	events, fetchError := eventsClient.FetchCommentEvents(context.Background(), gerrit.EventsQuery{
		EventsLogURL:    server.URL,
		Username:        testGerritUsernameConstant,
		Password:        testGerritPasswordConstant,
		LastTimestamp:   testLastTimestampConstant,
		RepositoryOwner: testRepositoryOwnerConstant,
		RepositoryName:  testRepositoryNameConstant,
	})
	require.NoError(testInstance, fetchError)
	require.Len(testInstance, events, 3)

	windowStart := time.Unix(testLastTimestampConstant, 0).UTC().Format("2006-01-02 15:04:05")
	windowEnd := time.Unix(testFrozenTimestampConstant-1, 0).UTC().Format("2006-01-02 15:04:05")
	require.Contains(testInstance, requestedURL, "t1="+windowStart)
	require.Contains(testInstance, requestedURL, "t2="+windowEnd)
	require.Equal(testInstance, testGerritUsernameConstant, requestedUsername)
	require.Equal(testInstance, testGerritPasswordConstant, requestedPassword)

	require.Equal(testInstance, testRepositoryOwnerConstant, variableUpdater.recordedOwner)
	require.Equal(testInstance, testRepositoryNameConstant, variableUpdater.recordedRepository)
	require.NotNil(testInstance, variableUpdater.recordedVariable)
	require.Equal(testInstance, "LAST_TIMESTAMP", variableUpdater.recordedVariable.Name)
	require.Equal(testInstance, "1700000100", variableUpdater.recordedVariable.Value)
}

func TestFetchCommentEventsSurfacesStatusFailures(testInstance *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(responseWriter http.ResponseWriter, _ *http.Request) {
		responseWriter.WriteHeader(http.StatusUnauthorized)
	}))
	testInstance.Cleanup(server.Close)

	eventsClient, creationError := gerrit.NewEventsClient(zap.NewNop(), server.Client(), &recordingVariableUpdater{}, nil)
	require.NoError(testInstance, creationError)

	_, fetchError := eventsClient.FetchCommentEvents(context.Background(), gerrit.EventsQuery{EventsLogURL: server.URL})
	statusError := gerrit.StatusError{}
	require.ErrorAs(testInstance, fetchError, &statusError)
	require.Equal(testInstance, http.StatusUnauthorized, statusError.StatusCode)
}

func TestFilterFalsePositiveRefs(testInstance *testing.T) {
	eventsClient, creationError := gerrit.NewEventsClient(zap.NewNop(), nil, &recordingVariableUpdater{}, nil)
	require.NoError(testInstance, creationError)

	events := []gerrit.Event{
		{Type: "comment-added", Comment: "Definitely a False Positive", PatchSet: gerrit.EventPatchSet{Ref: testFalsePositiveRefConstant}},
		{Type: "comment-added", Comment: "needs rework", PatchSet: gerrit.EventPatchSet{Ref: "refs/changes/04/404/1"}},
		{Type: "comment-added", Comment: "false positive without ref"},
		{Type: "change-merged", PatchSet: gerrit.EventPatchSet{Ref: "refs/changes/05/505/1"}},
	}

	falsePositiveRefs := eventsClient.FilterFalsePositiveRefs(events)
	require.Equal(testInstance, []string{testFalsePositiveRefConstant}, falsePositiveRefs)
}
