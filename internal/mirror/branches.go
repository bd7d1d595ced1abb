package mirror

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/temirov/gerrit-bridge/internal/execshell"
)

const (
	changeBranchPrefixConstant          = "changes/"
	branchRefPrefixConstant             = "refs/heads/"
	gerritRefPrefixConstant             = "refs/changes/"
	branchPathTemplateConstant          = "changes/%s/%d/%d"
	gitExecutorMissingMessageConstant   = "git executor not configured"
	repositoryPathRequiredMessageConst  = "repository path must be provided"
	remoteNameRequiredMessageConstant   = "remote name must be provided"
	malformedGerritRefTemplateConstant  = "ref %q is not a gerrit change ref"
	branchListingFailedTemplateConstant = "unable to list change branches on %s: %w"
	branchesListedMessageConstant       = "change branches listed"
	logFieldRemoteNameConstant          = "remote"
	logFieldBranchCountConstant         = "branch_count"
	lsRemoteSubcommandConstant          = "ls-remote"
	lsRemoteBranchesFlagConstant        = "--branches"
	changeBranchLinePatternConstant     = `^([0-9a-f]{40})\s+refs/heads/changes/([0-9]{2})/([0-9]+)/([0-9]+)$`
	changeRefComponentCountConstant     = 5
	changeDirectoryComponentIndexConst  = 2
	changeNumberComponentIndexConstant  = 3
	patchNumberComponentIndexConstant   = 4
	gerritRefExpectedComponentsConstant = 5
	gerritRefDirectoryComponentConstant = 2
	gerritRefChangeNumberComponentConst = 3
	gerritRefPatchNumberComponentConst  = 4
	gerritRefComponentSeparatorConstant = "/"
)

var changeBranchLineExpression = regexp.MustCompile(changeBranchLinePatternConstant)

// ErrGitExecutorNotConfigured indicates the inventory was constructed without a git executor.
var ErrGitExecutorNotConfigured = errors.New(gitExecutorMissingMessageConstant)

// ErrRepositoryPathRequired indicates an empty repository path was supplied.
var ErrRepositoryPathRequired = errors.New(repositoryPathRequiredMessageConst)

// ErrRemoteNameRequired indicates an empty remote name was supplied.
var ErrRemoteNameRequired = errors.New(remoteNameRequiredMessageConstant)

// MalformedRefError reports a ref that does not follow the Gerrit change ref layout.
type MalformedRefError struct {
	Ref string
}

// Error describes the malformed ref.
func (malformedError MalformedRefError) Error() string {
	return fmt.Sprintf(malformedGerritRefTemplateConstant, malformedError.Ref)
}

// ChangeRef identifies one Gerrit patchset by the components of its change ref.
type ChangeRef struct {
	Directory    string
	ChangeNumber int
	PatchNumber  int
}

// BranchPath returns the branch name holding this patchset on the target remote.
func (changeRef ChangeRef) BranchPath() string {
	return fmt.Sprintf(branchPathTemplateConstant, changeRef.Directory, changeRef.ChangeNumber, changeRef.PatchNumber)
}

// BranchRef returns the fully qualified branch ref of this patchset.
func (changeRef ChangeRef) BranchRef() string {
	return branchRefPrefixConstant + changeRef.BranchPath()
}

// GerritRef returns the Gerrit-side change ref of this patchset.
func (changeRef ChangeRef) GerritRef() string {
	return gerritRefPrefixConstant + changeRef.BranchPath()[len(changeBranchPrefixConstant):]
}

// ParseGerritRef splits a refs/changes/<dir>/<change>/<patch> ref into its components.
func ParseGerritRef(ref string) (ChangeRef, error) {
	trimmedRef := strings.TrimSpace(ref)
	if !strings.HasPrefix(trimmedRef, gerritRefPrefixConstant) {
		return ChangeRef{}, MalformedRefError{Ref: ref}
	}

	components := strings.Split(trimmedRef, gerritRefComponentSeparatorConstant)
	if len(components) != gerritRefExpectedComponentsConstant {
		return ChangeRef{}, MalformedRefError{Ref: ref}
	}

	changeNumber, changeNumberError := strconv.Atoi(components[gerritRefChangeNumberComponentConst])
	if changeNumberError != nil {
		return ChangeRef{}, MalformedRefError{Ref: ref}
	}

	patchNumber, patchNumberError := strconv.Atoi(components[gerritRefPatchNumberComponentConst])
	if patchNumberError != nil {
		return ChangeRef{}, MalformedRefError{Ref: ref}
	}

	return ChangeRef{
		Directory:    components[gerritRefDirectoryComponentConstant],
		ChangeNumber: changeNumber,
		PatchNumber:  patchNumber,
	}, nil
}

// BranchRecord pairs a change branch with the commit it points at.
type BranchRecord struct {
	CommitSHA string
	Ref       ChangeRef
}

// BranchLineResult tags a parsed ls-remote line as a change branch or unrelated output.
type BranchLineResult struct {
	Matched bool
	Record  BranchRecord
}

// ParseBranchLine classifies one line of git ls-remote output. Lines naming
// branches outside the changes namespace yield an unmatched result, not an error.
func ParseBranchLine(line string) BranchLineResult {
	components := changeBranchLineExpression.FindStringSubmatch(strings.TrimSpace(line))
	if len(components) != changeRefComponentCountConstant {
		return BranchLineResult{}
	}

	changeNumber, changeNumberError := strconv.Atoi(components[changeNumberComponentIndexConstant])
	if changeNumberError != nil {
		return BranchLineResult{}
	}
	patchNumber, patchNumberError := strconv.Atoi(components[patchNumberComponentIndexConstant])
	if patchNumberError != nil {
		return BranchLineResult{}
	}

	return BranchLineResult{
		Matched: true,
		Record: BranchRecord{
			CommitSHA: components[1],
			Ref: ChangeRef{
				Directory:    components[changeDirectoryComponentIndexConst],
				ChangeNumber: changeNumber,
				PatchNumber:  patchNumber,
			},
		},
	}
}

// GitExecutor runs git commands inside a working repository.
type GitExecutor interface {
	ExecuteGit(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error)
}

// Inventory lists the change branches already present on a remote.
type Inventory struct {
	logger      *zap.Logger
	gitExecutor GitExecutor
}

// NewInventory constructs an Inventory from the supplied logger and git executor.
func NewInventory(logger *zap.Logger, gitExecutor GitExecutor) (*Inventory, error) {
	if logger == nil {
		return nil, ErrLoggerNotConfigured
	}
	if gitExecutor == nil {
		return nil, ErrGitExecutorNotConfigured
	}
	return &Inventory{logger: logger, gitExecutor: gitExecutor}, nil
}

// ListChangeBranches queries the remote for branches in the changes namespace.
// Branches outside that namespace are ignored.
func (inventory *Inventory) ListChangeBranches(executionContext context.Context, repositoryPath string, remoteName string) ([]BranchRecord, error) {
	if len(strings.TrimSpace(repositoryPath)) == 0 {
		return nil, ErrRepositoryPathRequired
	}
	if len(strings.TrimSpace(remoteName)) == 0 {
		return nil, ErrRemoteNameRequired
	}

	executionResult, executionError := inventory.gitExecutor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        []string{lsRemoteSubcommandConstant, lsRemoteBranchesFlagConstant, remoteName},
		WorkingDirectory: repositoryPath,
	})
	if executionError != nil {
		return nil, fmt.Errorf(branchListingFailedTemplateConstant, remoteName, executionError)
	}

	branchRecords := []BranchRecord{}
	for _, line := range strings.Split(executionResult.StandardOutput, "\n") {
		lineResult := ParseBranchLine(line)
		if !lineResult.Matched {
			continue
		}
		branchRecords = append(branchRecords, lineResult.Record)
	}

	inventory.logger.Info(
		branchesListedMessageConstant,
		zap.String(logFieldRemoteNameConstant, remoteName),
		zap.Int(logFieldBranchCountConstant, len(branchRecords)),
	)
	return branchRecords, nil
}
