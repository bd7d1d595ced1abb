package gerrit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/go-github/v60/github"
	"go.uber.org/zap"
)

const (
	eventsLogURLRequiredMessageConstant      = "gerrit events-log url must be provided"
	variableUpdaterMissingMessageConstant    = "actions variable updater not configured"
	eventsRequestCreationTemplateConstant    = "unable to build events-log request: %w"
	eventsRequestExecutionTemplateConstant   = "events-log request failed: %w"
	eventsResponseReadTemplateConstant       = "unable to read events-log response: %w"
	eventDecodeTemplateConstant              = "events-log line is not valid JSON: %w"
	variableUpdateTemplateConstant           = "unable to advance %s: %w"
	eventsWindowTimestampLayoutConstant      = "2006-01-02 15:04:05"
	eventsWindowQueryTemplateConstant        = "%s/?t1=%s;t2=%s"
	falsePositiveCommentMarkerConstant       = "false positive"
	lastTimestampVariableNameConstant        = "LAST_TIMESTAMP"
	eventsRetrievedMessageConstant           = "events retrieved"
	falsePositivesFoundMessageConstant       = "false positive comments found"
	timestampCheckpointSavedMessageConstant  = "events-log timestamp checkpoint saved"
	logFieldEventCountConstant               = "event_count"
	logFieldFalsePositiveCountConstant       = "false_positive_count"
	logFieldWindowStartConstant              = "window_start"
	logFieldWindowEndConstant                = "window_end"
	logFieldCheckpointConstant               = "checkpoint"
	eventsWindowTrailingCutoffSecondConstant = 1
)

// ErrEventsLogURLRequired indicates an empty events-log URL was supplied.
var ErrEventsLogURLRequired = errors.New(eventsLogURLRequiredMessageConstant)

// ErrVariableUpdaterNotConfigured indicates the events client was constructed
// without an Actions variable updater.
var ErrVariableUpdaterNotConfigured = errors.New(variableUpdaterMissingMessageConstant)

// Clock abstracts time acquisition for deterministic testing.
type Clock interface {
	Now() time.Time
}

// SystemClock implements Clock using the system time source.
type SystemClock struct{}

// Now returns the current system time.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// ActionsVariableUpdater persists the events-log timestamp checkpoint as a
// GitHub Actions repository variable.
type ActionsVariableUpdater interface {
	UpdateRepoVariable(executionContext context.Context, owner string, repository string, variable *github.ActionsVariable) (*github.Response, error)
}

// EventPatchSet carries the patchset fields consumed from an event record.
type EventPatchSet struct {
	Ref string `json:"ref"`
}

// Event mirrors the subset of Gerrit events-log records consumed here.
type Event struct {
	Type     string        `json:"type"`
	Comment  string        `json:"comment"`
	PatchSet EventPatchSet `json:"patchSet"`
}

// EventsQuery describes one events-log retrieval window.
type EventsQuery struct {
	EventsLogURL    string
	Username        string
	Password        string
	LastTimestamp   int64
	RepositoryOwner string
	RepositoryName  string
}

// EventsClient reads the Gerrit events-log plugin and maintains the
// LAST_TIMESTAMP checkpoint between scheduled runs.
type EventsClient struct {
	logger          *zap.Logger
	httpClient      *http.Client
	variableUpdater ActionsVariableUpdater
	clock           Clock
}

// NewEventsClient constructs an events-log client. A nil httpClient falls back
// to http.DefaultClient and a nil clock to the system clock.
func NewEventsClient(logger *zap.Logger, httpClient *http.Client, variableUpdater ActionsVariableUpdater, clock Clock) (*EventsClient, error) {
	if logger == nil {
		return nil, ErrLoggerNotConfigured
	}
	if variableUpdater == nil {
		return nil, ErrVariableUpdaterNotConfigured
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &EventsClient{logger: logger, httpClient: httpClient, variableUpdater: variableUpdater, clock: clock}, nil
}

// FetchCommentEvents retrieves events between the stored checkpoint and one
// second before now, then advances the checkpoint variable. The trailing
// cutoff avoids retrieving a fraction of the events of the current second.
func (client *EventsClient) FetchCommentEvents(executionContext context.Context, query EventsQuery) ([]Event, error) {
	trimmedEventsLogURL := strings.TrimSpace(query.EventsLogURL)
	if len(trimmedEventsLogURL) == 0 {
		return nil, ErrEventsLogURLRequired
	}

	windowStart := time.Unix(query.LastTimestamp, 0).UTC().Format(eventsWindowTimestampLayoutConstant)
	windowEndTimestamp := client.clock.Now().Unix() - eventsWindowTrailingCutoffSecondConstant
	windowEnd := time.Unix(windowEndTimestamp, 0).UTC().Format(eventsWindowTimestampLayoutConstant)

	requestURL := fmt.Sprintf(eventsWindowQueryTemplateConstant, trimmedEventsLogURL, windowStart, windowEnd)
	request, requestError := http.NewRequestWithContext(executionContext, http.MethodGet, requestURL, nil)
	if requestError != nil {
		return nil, fmt.Errorf(eventsRequestCreationTemplateConstant, requestError)
	}
	request.SetBasicAuth(query.Username, query.Password)

	response, responseError := client.httpClient.Do(request)
	if responseError != nil {
		return nil, fmt.Errorf(eventsRequestExecutionTemplateConstant, responseError)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return nil, StatusError{StatusCode: response.StatusCode}
	}

	responseBody, readError := io.ReadAll(response.Body)
	if readError != nil {
		return nil, fmt.Errorf(eventsResponseReadTemplateConstant, readError)
	}

	events, decodeError := decodeEventLines(string(responseBody))
	if decodeError != nil {
		return nil, decodeError
	}

	checkpoint := windowEndTimestamp + eventsWindowTrailingCutoffSecondConstant
	if checkpointError := client.saveCheckpoint(executionContext, query, checkpoint); checkpointError != nil {
		return nil, checkpointError
	}

	client.logger.Info(
		eventsRetrievedMessageConstant,
		zap.Int(logFieldEventCountConstant, len(events)),
		zap.String(logFieldWindowStartConstant, windowStart),
		zap.String(logFieldWindowEndConstant, windowEnd),
	)

	return events, nil
}

func (client *EventsClient) saveCheckpoint(executionContext context.Context, query EventsQuery, checkpoint int64) error {
	variable := &github.ActionsVariable{
		Name:  lastTimestampVariableNameConstant,
		Value: strconv.FormatInt(checkpoint, 10),
	}

	_, updateError := client.variableUpdater.UpdateRepoVariable(executionContext, query.RepositoryOwner, query.RepositoryName, variable)
	if updateError != nil {
		return fmt.Errorf(variableUpdateTemplateConstant, lastTimestampVariableNameConstant, updateError)
	}

	client.logger.Info(timestampCheckpointSavedMessageConstant, zap.Int64(logFieldCheckpointConstant, checkpoint))
	return nil
}

func decodeEventLines(responseBody string) ([]Event, error) {
	events := []Event{}
	for _, line := range strings.Split(responseBody, "\n") {
		trimmedLine := strings.TrimSpace(line)
		if len(trimmedLine) == 0 {
			continue
		}

		var event Event
		if unmarshalError := json.Unmarshal([]byte(trimmedLine), &event); unmarshalError != nil {
			return nil, fmt.Errorf(eventDecodeTemplateConstant, unmarshalError)
		}
		events = append(events, event)
	}
	return events, nil
}

// FilterFalsePositiveRefs returns the patchset refs of comment events whose
// comment marks a prior verification failure as a false positive; those
// patchsets are queued for another verification run.
func (client *EventsClient) FilterFalsePositiveRefs(events []Event) []string {
	falsePositiveRefs := []string{}
	for _, event := range events {
		if len(event.Comment) == 0 {
			continue
		}
		if !strings.Contains(strings.ToLower(event.Comment), falsePositiveCommentMarkerConstant) {
			continue
		}
		if len(strings.TrimSpace(event.PatchSet.Ref)) == 0 {
			continue
		}
		falsePositiveRefs = append(falsePositiveRefs, event.PatchSet.Ref)
	}

	if len(falsePositiveRefs) > 0 {
		client.logger.Info(falsePositivesFoundMessageConstant, zap.Int(logFieldFalsePositiveCountConstant, len(falsePositiveRefs)))
	}
	return falsePositiveRefs
}
