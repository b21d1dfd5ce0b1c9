// Package constants centralizes defaults shared across headerscope.
//
// Fetch timeouts, body limits and the missing-header sentinel live here so
// cmd/, internal/api and internal/checker agree on them without import cycles.
package constants
