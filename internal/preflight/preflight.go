package preflight

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
)

// Check is a single environment check.
type Check interface {
	Name() string
	SkipAllowed() bool
	Execute(ctx context.Context) Result
}

// Run executes every check not named in skip. Checks that cannot be skipped
// run regardless and are logged.
func Run(ctx context.Context, logger *slog.Logger, checkList []Check, skip ...string) *MappedResults {
	if logger == nil {
		logger = slog.Default()
	}
	results := NewMappedResults()
	for _, check := range checkList {
		if contains(skip, check.Name()) {
			if check.SkipAllowed() {
				logger.Debug("skipping preflight check", "check", check.Name())
				results.AddResult(Result{Check: check.Name(), Status: StatusSkipped})
				continue
			}
			logger.Warn("preflight check cannot be skipped", "check", check.Name())
		}

		result := check.Execute(ctx)
		results.AddResult(result)
		if result.Error == nil {
			continue
		}
		if result.Status == StatusWarning {
			logger.Warn("preflight warning", "check", check.Name(), "error", result.Error)
		} else {
			logger.Error("preflight failed", "check", check.Name(), "error", result.Error)
		}
	}
	return results
}

// ShouldFail reports whether any check failed critically.
func ShouldFail(results *MappedResults) bool {
	return len(results.Critical) > 0
}

// PrintResults renders results as a table.
func PrintResults(w io.Writer, results *MappedResults) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"#", "Check", "Status", "Error"})
	table.SetAutoWrapText(false)
	for i, r := range results.All() {
		msg := ""
		if r.Error != nil {
			msg = r.Error.Error()
		}
		table.Append([]string{fmt.Sprint(i + 1), r.Check, r.Status.String(), msg})
	}
	table.Render()
}

// Binary checks that an executable is on PATH and answers a version query.
type Binary struct {
	Bin      string
	Args     []string
	Critical bool
	Timeout  time.Duration
	LookPath func(string) (string, error)
}

func (b Binary) Name() string { return filepath.Base(b.Bin) }

func (b Binary) SkipAllowed() bool { return !b.Critical }

func (b Binary) Execute(ctx context.Context) Result {
	res := Result{Check: b.Name(), Status: StatusPassed}
	lookPath := b.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	path, err := lookPath(b.Bin)
	if err != nil {
		res.Error = fmt.Errorf("%s not found on PATH", b.Bin)
		res.Status = b.failStatus()
		return res
	}
	if len(b.Args) == 0 {
		return res
	}

	wait := b.Timeout
	if wait <= 0 {
		wait = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	if out, err := exec.CommandContext(ctx, path, b.Args...).CombinedOutput(); err != nil {
		res.Error = fmt.Errorf("%s %s: %v: %s", b.Bin, strings.Join(b.Args, " "), err, strings.TrimSpace(string(out)))
		res.Status = b.failStatus()
	}
	return res
}

func (b Binary) failStatus() Status {
	if b.Critical {
		return StatusCritical
	}
	return StatusWarning
}

// Fonts warns when fontconfig reports no installed fonts.
type Fonts struct {
	Bin string
}

func (Fonts) Name() string      { return "fonts" }
func (Fonts) SkipAllowed() bool { return true }

func (f Fonts) Execute(ctx context.Context) Result {
	res := Result{Check: f.Name(), Status: StatusPassed}
	bin := f.Bin
	if bin == "" {
		bin = "fc-list"
	}
	out, err := exec.CommandContext(ctx, bin).Output()
	if err != nil {
		res.Error = fmt.Errorf("%s: %v", bin, err)
		res.Status = StatusWarning
		return res
	}
	if strings.TrimSpace(string(out)) == "" {
		res.Error = fmt.Errorf("no fonts installed; rendered documents will fall back to defaults")
		res.Status = StatusWarning
	}
	return res
}

// WritableDir verifies the service can create files in Dir.
type WritableDir struct {
	Dir string
}

func (WritableDir) Name() string      { return "artifacts dir" }
func (WritableDir) SkipAllowed() bool { return false }

func (d WritableDir) Execute(context.Context) Result {
	res := Result{Check: d.Name(), Status: StatusPassed}
	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		res.Error = fmt.Errorf("create %s: %v", d.Dir, err)
		res.Status = StatusCritical
		return res
	}
	f, err := os.CreateTemp(d.Dir, ".preflight-*")
	if err != nil {
		res.Error = fmt.Errorf("%s is not writable: %v", d.Dir, err)
		res.Status = StatusCritical
		return res
	}
	name := f.Name()
	f.Close()
	os.Remove(name)
	return res
}

// Default returns the checks for a conversion host.
func Default(sofficeBin, gsBin, artifactsDir string) []Check {
	return []Check{
		Binary{Bin: sofficeBin, Args: []string{"--version"}, Critical: true},
		Binary{Bin: gsBin, Args: []string{"--version"}, Critical: true},
		Binary{Bin: "unoconv"},
		Fonts{},
		WritableDir{Dir: artifactsDir},
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
