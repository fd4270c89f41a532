// Package errors provides the structured error type used across pipegraph.
//
// Every error that crosses a package boundary is an *AppError carrying a
// machine-readable ErrorCode. Graph errors (duplicate jobs, unknown
// dependencies, cycles, invalid matrices) are fatal and reported before any
// job runs; executor errors and step failures are recorded on the step
// result of the instance that produced them.
package errors
