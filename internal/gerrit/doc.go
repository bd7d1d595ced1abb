// Package gerrit consumes the Gerrit REST API: the change query endpoint that
// yields the refs of every open patchset, and the events-log plugin used to
// requeue patchsets whose verification failures were marked false positives.
package gerrit
