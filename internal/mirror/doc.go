// Package mirror moves Gerrit patchset refs into per-patchset branches on a
// target remote. It lists the change branches already present on the target,
// computes the backlog of refs still awaiting transfer, and replays each ref
// through git fetch and push inside a local working repository.
package mirror
