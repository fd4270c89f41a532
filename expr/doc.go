// Package expr compiles and evaluates the small expression language used in
// pipeline definitions: step conditions (`if: matrix.os == "windows"`) and
// string templates (`image: golang:${matrix.go}`).
//
// Expressions use HCL native syntax and are evaluated with go-cty against a
// Scope holding the job id, the matrix assignment of the instance and the
// outcomes of earlier steps:
//
//	matrix.<axis>           string value of a matrix axis
//	job.id                  id of the job
//	steps.<name>.outcome    "success" or "skipped"
//
// The functions lower, upper, strlen and contains are available.
package expr
