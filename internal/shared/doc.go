// Package shared holds code used by several packages without belonging to
// any of them. Today that is only testutil, the log-capture helpers used by
// package tests to assert on structured log output.
package shared
