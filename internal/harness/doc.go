// Package harness smoke-tests the OpenSBLI/OPS toolchain against a set of
// example applications.
//
// Each application goes through three stages, strictly in order:
//
//  1. generate: run the example's generator script to produce opensbli.cpp
//  2. translate: run the OPS translator against opensbli.cpp
//  3. compile: copy the build template and build every target (sequential
//     and MPI by default) with make -j N -B
//
// Before the first stage the script is staged into its own directory under
// the workspace:
//
//	{workspace}/{name}/{name}.py
//
// An application moves PENDING -> GENERATED -> TRANSLATED -> COMPILED. Any
// stage that exits non-zero moves it to FAILED and the remaining stages are
// skipped. FAILED and COMPILED are terminal. A failure is isolated to its
// application; the next one still runs.
//
// Configuration and argument errors are not isolated. A missing
// OPENSBLI_INSTALL or OPS_TRANSLATOR is reported by Run before anything is
// written to the workspace.
//
// Run processes applications one at a time and blocks on every external
// process. The only parallelism is inside make.
//
// # Usage
//
//	h := harness.New(cfg, runner.NewExecRunner(logger), harness.Options{
//	    Listener: console,
//	    Logger:   logger,
//	})
//	report, err := h.RunAll(ctx)
//	if err != nil {
//	    return err
//	}
//	fmt.Printf("%d passed, %d failed\n", report.Passed, report.Failed)
package harness
