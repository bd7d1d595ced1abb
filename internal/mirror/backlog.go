package mirror

import (
	"go.uber.org/zap"
)

const (
	backlogComputedMessageConstant = "transfer backlog computed"
	logFieldPendingCountConstant   = "pending_count"
	logFieldDeliveredCountConstant = "delivered_count"
	logFieldCandidateCountConstant = "candidate_count"
)

// Backlog separates candidate refs into those still awaiting transfer and
// those whose change branch already exists on the target remote.
type Backlog struct {
	PendingRefs   []string
	DeliveredRefs []string
}

// ComputeBacklog filters candidate refs against the branches already present
// on the target remote. Candidate order is preserved and duplicates collapse
// onto their first occurrence; a ref outside the Gerrit change layout aborts
// the computation.
func ComputeBacklog(logger *zap.Logger, candidateRefs []string, existingBranches []BranchRecord) (Backlog, error) {
	deliveredBranchPaths := make(map[string]struct{}, len(existingBranches))
	for _, branchRecord := range existingBranches {
		deliveredBranchPaths[branchRecord.Ref.BranchPath()] = struct{}{}
	}

	observedRefs := map[string]struct{}{}
	backlog := Backlog{PendingRefs: []string{}, DeliveredRefs: []string{}}
	for _, candidateRef := range candidateRefs {
		changeRef, parseError := ParseGerritRef(candidateRef)
		if parseError != nil {
			return Backlog{}, parseError
		}

		if _, alreadyObserved := observedRefs[candidateRef]; alreadyObserved {
			continue
		}
		observedRefs[candidateRef] = struct{}{}

		if _, delivered := deliveredBranchPaths[changeRef.BranchPath()]; delivered {
			backlog.DeliveredRefs = append(backlog.DeliveredRefs, candidateRef)
			continue
		}
		backlog.PendingRefs = append(backlog.PendingRefs, candidateRef)
	}

	logger.Info(
		backlogComputedMessageConstant,
		zap.Int(logFieldCandidateCountConstant, len(candidateRefs)),
		zap.Int(logFieldPendingCountConstant, len(backlog.PendingRefs)),
		zap.Int(logFieldDeliveredCountConstant, len(backlog.DeliveredRefs)),
	)
	return backlog, nil
}
