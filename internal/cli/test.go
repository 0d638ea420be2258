package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yvasilyev92/AddressBook/internal/harness"
)

type TestOptions struct {
	*RootOptions
	Update bool
	Filter string
}

// ScenarioResult is the outcome of one scenario file.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`
}

// TestResult is the JSON payload of the test command.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

func (r *TestResult) add(s ScenarioResult) {
	r.Scenarios = append(r.Scenarios, s)
	r.Total++
	if s.Pass {
		r.Passed++
	} else {
		r.Failed++
	}
}

func (r *TestResult) err() error {
	if r.Failed == 0 {
		return nil
	}
	e := NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", r.Failed))
	e.Reported = true
	return e
}

func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Replay scenario files against an in-memory address book",
		Long: `Replay scenario files against a fresh in-memory address book.

A scenario opens watches, performs writes and records what every watch
received. The recorded trace must satisfy the scenario's assertions and,
when <scenarios-dir>/golden/<file>.golden exists, equal it byte for byte.
The --db flag has no effect here.

Exit status is 0 when every scenario passes, 1 when any fails and 2 when
the directory or filter cannot be used.

  addressbook test ./scenarios
  addressbook test ./scenarios --filter "item-*"
  addressbook test ./scenarios --update
  addressbook test ./scenarios --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			r := &scenarioRunner{opts: opts, out: cmd.OutOrStdout()}
			return r.runDir(args[0])
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "rewrite golden files from the current traces")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "only run scenarios whose file name matches this glob")

	return cmd
}

type scenarioRunner struct {
	opts *TestOptions
	out  io.Writer
}

func (r *scenarioRunner) isJSON() bool {
	return r.opts.Format == "json"
}

func (r *scenarioRunner) runDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return NewExitError(ExitCommandError, "scenarios directory not found: "+dir)
	}

	files, err := findScenarioFiles(dir, r.opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "find scenarios", err)
	}

	result := TestResult{Scenarios: []ScenarioResult{}}
	if len(files) == 0 && !r.isJSON() {
		fmt.Fprintln(r.out, "No scenarios found.")
		return nil
	}
	for _, file := range files {
		sr := r.run(file)
		r.print(sr)
		result.add(sr)
	}

	if r.isJSON() {
		return r.writeJSON(result)
	}
	fmt.Fprintf(r.out, "\nTest Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
	if result.Failed == 0 {
		fmt.Fprintln(r.out, "✓ All scenarios passed")
	}
	return result.err()
}

// run executes one scenario file. With --update the golden file is rewritten
// instead of compared, so only the assertions can fail it.
func (r *scenarioRunner) run(file string) ScenarioResult {
	scenario, err := harness.LoadScenario(file)
	if err != nil {
		return ScenarioResult{Name: filepath.Base(file), Errors: []string{"load error: " + err.Error()}}
	}
	r.opts.logger().Debug("running scenario", "name", scenario.Name, "file", file)

	failed := func(errs ...string) ScenarioResult {
		return ScenarioResult{Name: scenario.Name, Errors: errs}
	}

	result, err := harness.Run(scenario)
	if err != nil {
		return failed("execution error: " + err.Error())
	}
	snapshot, err := harness.SnapshotJSON(scenario.Name, result)
	if err != nil {
		return failed("snapshot error: " + err.Error())
	}

	golden := goldenFilePath(file)
	var errs []string
	if r.opts.Update {
		if err := writeGolden(golden, snapshot); err != nil {
			return failed("golden update error: " + err.Error())
		}
	} else if msg := compareGolden(golden, snapshot); msg != "" {
		errs = append(errs, msg)
	}
	errs = append(errs, result.Errors...)

	return ScenarioResult{Name: scenario.Name, Pass: len(errs) == 0, Errors: errs}
}

func (r *scenarioRunner) print(sr ScenarioResult) {
	if r.isJSON() {
		return
	}
	if !sr.Pass {
		fmt.Fprintf(r.out, "✗ %s\n", sr.Name)
		for _, e := range sr.Errors {
			fmt.Fprintf(r.out, "  %s\n", e)
		}
		return
	}
	note := ""
	if r.opts.Update {
		note = " (golden updated)"
	}
	fmt.Fprintf(r.out, "✓ %s%s\n", sr.Name, note)
}

func (r *scenarioRunner) writeJSON(result TestResult) error {
	resp := CLIResponse{Status: "ok", Data: result}
	if result.Failed > 0 {
		resp.Status = "error"
		resp.Error = &CLIError{
			Code:    CodeTestFailed,
			Message: fmt.Sprintf("%d scenario(s) failed", result.Failed),
		}
	}

	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(resp); err != nil {
		return err
	}
	return result.err()
}

// compareGolden returns a failure message when the golden file exists and
// differs from snapshot. A missing golden file is not a failure.
func compareGolden(path string, snapshot []byte) string {
	want, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return ""
	case err != nil:
		return "golden read error: " + err.Error()
	case !bytes.Equal(want, snapshot):
		return "trace does not match golden file (run with --update to regenerate)"
	}
	return ""
}

// findScenarioFiles lists the scenario files in dir whose name, minus its
// extension, matches filter. An empty filter keeps everything.
func findScenarioFiles(dir, filter string) ([]string, error) {
	files, err := harness.FindScenarios(dir)
	if err != nil || filter == "" {
		return files, err
	}

	kept := files[:0]
	for _, path := range files {
		ok, err := filepath.Match(filter, scenarioStem(path))
		if err != nil {
			return nil, fmt.Errorf("invalid filter pattern: %w", err)
		}
		if ok {
			kept = append(kept, path)
		}
	}
	return kept, nil
}

func scenarioStem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// goldenFilePath maps <dir>/<name>.yaml to <dir>/golden/<name>.golden.
func goldenFilePath(scenarioFile string) string {
	return filepath.Join(filepath.Dir(scenarioFile), "golden", scenarioStem(scenarioFile)+".golden")
}

func writeGolden(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create golden directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
