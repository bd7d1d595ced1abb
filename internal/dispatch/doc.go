// Package dispatch starts GitHub Actions workflow runs for freshly delivered
// change branches through the workflow dispatch API.
package dispatch
