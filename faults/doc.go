// Package faults defines the error taxonomy shared by all tripwire
// packages: typed classification of upstream failures, sentinel errors,
// user-facing message mapping, and the terminal-failure reporter.
package faults
