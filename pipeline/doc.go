// Package pipeline reads pipeline definitions from YAML and compiles them
// into job specs for the dag package.
//
// A definition names its jobs, their dependencies, matrices and steps, and
// may include other definitions by name:
//
//	name: ci
//	gate: required
//	includes: [shared-lint]
//	jobs:
//	  - id: test
//	    depends_on: [lint]
//	    matrix:
//	      os: [ubuntu, macos, windows]
//	    steps:
//	      - name: unit
//	        run: go test ./...
//	      - name: windows-only
//	        if: matrix.os == "windows"
//	        run: ./scripts/win.ps1
//
// Typical use:
//
//	def, err := pipeline.LoadFile("ci.yaml")
//	def, err = pipeline.Resolve(def, pipeline.NewFileLoader("pipelines"))
//	compiled, err := pipeline.Compile(def)
//	g, err := compiled.Graph()
package pipeline
