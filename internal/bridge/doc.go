// Package bridge orchestrates one synchronization run: open Gerrit changes
// are discovered, refs not yet delivered to the target remote are replayed as
// change branches, the delivered branch inventory is written to disk, and
// verification workflows are started for every freshly delivered branch.
package bridge
