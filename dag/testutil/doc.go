// Package testutil provides test helpers for code built on the dag package.
//
// It includes a scripted step executor that records calls and a fluent
// builder for job graphs.
//
// Example:
//
//	func TestMyPipeline(t *testing.T) {
//	    g := testutil.NewGraphBuilder().
//	        Job("build", "compile").
//	        Job("test", "unit").DependsOn("build").
//	        Gate("test").
//	        MustBuild(t)
//
//	    exec := testutil.NewScriptedExecutor().FailStep("test", "unit", 1)
//	    result, err := dag.NewScheduler(exec).Run(context.Background(), g)
//	    // ... assertions
//	}
package testutil
