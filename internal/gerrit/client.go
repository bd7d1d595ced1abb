package gerrit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"go.uber.org/zap"
)

const (
	// APIMaximumChangeCount is the hard cap Gerrit enforces on a single change query.
	// Changes beyond this position in the most-recently-updated ordering are never
	// observed, which starves stale changes; callers must not request more.
	APIMaximumChangeCount = 500

	antiXSSIPreambleConstant           = ")]}'"
	anonymousFetchSchemeConstant       = "anonymous http"
	refFieldNameConstant               = "ref"
	fetchURLFieldNameConstant          = "fetch url"
	loggerNotConfiguredMessageConstant = "logger not configured"
	queryURLRequiredMessageConstant    = "gerrit query url must be provided"
	requestCreationTemplateConstant    = "unable to build gerrit request: %w"
	requestExecutionTemplateConstant   = "gerrit request failed: %w"
	responseReadTemplateConstant       = "unable to read gerrit response: %w"
	statusErrorTemplateConstant        = "gerrit query returned status %d"
	payloadDecodeTemplateConstant      = "gerrit payload is not valid JSON: %s"
	incompleteRevisionTemplateConstant = "change %s revision is missing its %s"
	remoteConsistencyTemplateConstant  = "changes reference multiple anonymous remotes: %s"
	remoteURLJoinSeparatorConstant     = ", "
	changeRefObservedMessageConstant   = "change ref observed"
	changeCountSummaryMessageConstant  = "changes retrieved"
	possibleTruncationMessageConstant  = "change count reached the requested limit; more changes may be pending"
	logFieldRefConstant                = "ref"
	logFieldRevisionConstant           = "revision"
	logFieldRemoteURLConstant          = "remote_url"
	logFieldChangeCountConstant        = "change_count"
	logFieldRequestedLimitConstant     = "requested_limit"
)

// ErrLoggerNotConfigured indicates the client was constructed without a logger.
var ErrLoggerNotConfigured = errors.New(loggerNotConfiguredMessageConstant)

// ErrQueryURLRequired indicates an empty query URL was supplied.
var ErrQueryURLRequired = errors.New(queryURLRequiredMessageConstant)

// StatusError reports a Gerrit response with an unexpected HTTP status.
type StatusError struct {
	StatusCode int
}

// Error describes the unexpected status.
func (statusError StatusError) Error() string {
	return fmt.Sprintf(statusErrorTemplateConstant, statusError.StatusCode)
}

// PayloadDecodeError reports a response body that could not be parsed after
// stripping the anti-XSSI preamble.
type PayloadDecodeError struct {
	Cause error
}

// Error describes the decoding failure.
func (decodeError PayloadDecodeError) Error() string {
	return fmt.Sprintf(payloadDecodeTemplateConstant, decodeError.Cause)
}

// Unwrap exposes the underlying JSON error.
func (decodeError PayloadDecodeError) Unwrap() error {
	return decodeError.Cause
}

// IncompleteRevisionError reports a revision entry lacking a required field.
type IncompleteRevisionError struct {
	ChangeIdentifier string
	MissingField     string
}

// Error describes the malformed revision.
func (incompleteError IncompleteRevisionError) Error() string {
	return fmt.Sprintf(incompleteRevisionTemplateConstant, incompleteError.ChangeIdentifier, incompleteError.MissingField)
}

// RemoteConsistencyError reports a change list spanning more than one anonymous remote.
type RemoteConsistencyError struct {
	RemoteURLs []string
}

// Error describes the conflicting remotes.
func (consistencyError RemoteConsistencyError) Error() string {
	return fmt.Sprintf(remoteConsistencyTemplateConstant, strings.Join(consistencyError.RemoteURLs, remoteURLJoinSeparatorConstant))
}

// FetchEndpoint describes one scheme-specific fetch location of a revision.
type FetchEndpoint struct {
	URL string `json:"url"`
	Ref string `json:"ref"`
}

// RevisionInfo describes a single patchset of a change.
type RevisionInfo struct {
	Ref   string                   `json:"ref"`
	Fetch map[string]FetchEndpoint `json:"fetch"`
}

// ChangeInfo mirrors the subset of Gerrit's ChangeInfo entity consumed here.
type ChangeInfo struct {
	ID           string                  `json:"id"`
	Project      string                  `json:"project"`
	ChangeNumber int                     `json:"_number"`
	Subject      string                  `json:"subject"`
	Revisions    map[string]RevisionInfo `json:"revisions"`
}

// ChangeSet carries the refs of every open patchset together with the single
// anonymous remote URL they share. RemoteURL is empty when no changes exist.
type ChangeSet struct {
	Refs      []string
	RemoteURL string
}

// Client queries the Gerrit REST API for open changes.
type Client struct {
	logger     *zap.Logger
	httpClient *http.Client
}

// NewClient constructs a Gerrit client. A nil httpClient falls back to http.DefaultClient.
func NewClient(logger *zap.Logger, httpClient *http.Client) (*Client, error) {
	if logger == nil {
		return nil, ErrLoggerNotConfigured
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{logger: logger, httpClient: httpClient}, nil
}

// FetchOpenChanges retrieves the refs of every open patchset from the supplied
// query URL. Refs are returned in response order (most recently updated first)
// without deduplication; one patchset yields one ref. requestedLimit only feeds
// the truncation warning — the query URL itself bounds the page size.
func (client *Client) FetchOpenChanges(executionContext context.Context, queryURL string, requestedLimit int) (ChangeSet, error) {
	trimmedQueryURL := strings.TrimSpace(queryURL)
	if len(trimmedQueryURL) == 0 {
		return ChangeSet{}, ErrQueryURLRequired
	}

	request, requestError := http.NewRequestWithContext(executionContext, http.MethodGet, trimmedQueryURL, nil)
	if requestError != nil {
		return ChangeSet{}, fmt.Errorf(requestCreationTemplateConstant, requestError)
	}

	response, responseError := client.httpClient.Do(request)
	if responseError != nil {
		return ChangeSet{}, fmt.Errorf(requestExecutionTemplateConstant, responseError)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return ChangeSet{}, StatusError{StatusCode: response.StatusCode}
	}

	responseBody, readError := io.ReadAll(response.Body)
	if readError != nil {
		return ChangeSet{}, fmt.Errorf(responseReadTemplateConstant, readError)
	}

	changes, decodeError := decodeChangePayload(responseBody)
	if decodeError != nil {
		return ChangeSet{}, decodeError
	}

	return client.collectRefs(changes, requestedLimit)
}

func decodeChangePayload(responseBody []byte) ([]ChangeInfo, error) {
	payload := strings.TrimPrefix(string(responseBody), antiXSSIPreambleConstant)

	var changes []ChangeInfo
	if unmarshalError := json.Unmarshal([]byte(payload), &changes); unmarshalError != nil {
		return nil, PayloadDecodeError{Cause: unmarshalError}
	}
	return changes, nil
}

func (client *Client) collectRefs(changes []ChangeInfo, requestedLimit int) (ChangeSet, error) {
	observedRemoteURLs := map[string]struct{}{}
	collectedRefs := []string{}

	for _, change := range changes {
		for _, revisionSHA := range sortedRevisionKeys(change.Revisions) {
			revision := change.Revisions[revisionSHA]

			anonymousEndpoint, endpointExists := revision.Fetch[anonymousFetchSchemeConstant]
			if !endpointExists || len(strings.TrimSpace(anonymousEndpoint.URL)) == 0 {
				return ChangeSet{}, IncompleteRevisionError{ChangeIdentifier: change.ID, MissingField: fetchURLFieldNameConstant}
			}

			trimmedRef := strings.TrimSpace(revision.Ref)
			if len(trimmedRef) == 0 {
				return ChangeSet{}, IncompleteRevisionError{ChangeIdentifier: change.ID, MissingField: refFieldNameConstant}
			}

			observedRemoteURLs[anonymousEndpoint.URL] = struct{}{}
			collectedRefs = append(collectedRefs, trimmedRef)

			client.logger.Info(
				changeRefObservedMessageConstant,
				zap.String(logFieldRefConstant, trimmedRef),
				zap.String(logFieldRevisionConstant, revisionSHA),
				zap.String(logFieldRemoteURLConstant, anonymousEndpoint.URL),
			)
		}
	}

	if len(observedRemoteURLs) > 1 {
		return ChangeSet{}, RemoteConsistencyError{RemoteURLs: sortedRemoteURLs(observedRemoteURLs)}
	}

	client.logger.Info(changeCountSummaryMessageConstant, zap.Int(logFieldChangeCountConstant, len(collectedRefs)))
	if requestedLimit > 0 && len(collectedRefs) >= requestedLimit {
		client.logger.Warn(
			possibleTruncationMessageConstant,
			zap.Int(logFieldChangeCountConstant, len(collectedRefs)),
			zap.Int(logFieldRequestedLimitConstant, requestedLimit),
		)
	}

	changeSet := ChangeSet{Refs: collectedRefs}
	for remoteURL := range observedRemoteURLs {
		changeSet.RemoteURL = remoteURL
	}
	return changeSet, nil
}

func sortedRevisionKeys(revisions map[string]RevisionInfo) []string {
	revisionKeys := make([]string, 0, len(revisions))
	for revisionSHA := range revisions {
		revisionKeys = append(revisionKeys, revisionSHA)
	}
	sort.Strings(revisionKeys)
	return revisionKeys
}

func sortedRemoteURLs(remoteURLs map[string]struct{}) []string {
	collected := make([]string, 0, len(remoteURLs))
	for remoteURL := range remoteURLs {
		collected = append(collected, remoteURL)
	}
	sort.Strings(collected)
	return collected
}
