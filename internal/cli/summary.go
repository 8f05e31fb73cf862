package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/qmsolve/mrscf/internal/config"
	"github.com/qmsolve/mrscf/internal/scf"
	"github.com/qmsolve/mrscf/internal/ui"
)

// PrintRunHeader writes the resolved runtime configuration before the
// iteration starts, so a run log always states what it was computing.
func PrintRunHeader(out io.Writer, cfg config.AppConfig) {
	fmt.Fprintf(out, "%s--- Run configuration ---%s\n", ui.Bold(), ui.Reset())
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "input deck\t%s%s%s\n", ui.Accent(), cfg.Input, ui.Reset())
	fmt.Fprintf(w, "mode\t%s\n", cfg.Mode)
	fmt.Fprintf(w, "rotation\t%s\n", cfg.Rotation)
	fmt.Fprintf(w, "max iterations\t%d\n", cfg.MaxIter)
	fmt.Fprintf(w, "orbital threshold\t%s\n", formatThreshold(cfg.OrbitalThreshold))
	fmt.Fprintf(w, "property threshold\t%s\n", formatThreshold(cfg.PropertyThreshold))
	fmt.Fprintf(w, "history\t%d\n", cfg.History)
	w.Flush()
	fmt.Fprintln(out)
}

func formatThreshold(v float64) string {
	if v < 0 {
		return "disabled"
	}
	return fmt.Sprintf("%.1e", v)
}

// PrintEnergyTable writes the per-iteration energy history as an aligned
// table: total energy, change against the previous iteration, and the
// orbital error.
func PrintEnergyTable(out io.Writer, updates []scf.IterationUpdate) {
	if len(updates) == 0 {
		return
	}
	fmt.Fprintf(out, "%s--- Iteration history ---%s\n", ui.Bold(), ui.Reset())
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(w, "iter\ttotal energy\tΔE\terr_o\t\n")
	for _, u := range updates {
		delta := "-"
		if u.PropertyError < 1e300 {
			delta = fmt.Sprintf("%.2e", u.PropertyError)
		}
		fmt.Fprintf(w, "%d\t%.10f\t%s\t%.2e\t\n", u.Iter, u.Energy.Total, delta, u.OrbitalError)
	}
	w.Flush()
	fmt.Fprintln(out)
}

// PrintSummary writes the outcome of the run: convergence status, the final
// energy decomposition, and the residual errors.
func PrintSummary(out io.Writer, res scf.Result, elapsed time.Duration) {
	status := fmt.Sprintf("%s%sNOT CONVERGED%s", ui.Bold(), ui.Warn(), ui.Reset())
	if res.Converged {
		status = fmt.Sprintf("%s%sCONVERGED%s", ui.Bold(), ui.Good(), ui.Reset())
	}
	fmt.Fprintf(out, "%s after %s%d%s iterations (%s)\n",
		status, ui.Accent(), res.Iterations, ui.Reset(), FormatElapsed(elapsed))

	final := res.Final()
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(w, "kinetic\t%.10f\t\n", final.Kinetic)
	fmt.Fprintf(w, "nuclear\t%.10f\t\n", final.Nuclear)
	fmt.Fprintf(w, "coulomb\t%.10f\t\n", final.Coulomb)
	fmt.Fprintf(w, "exchange\t%.10f\t\n", final.Exchange)
	if final.XC != 0 {
		fmt.Fprintf(w, "xc\t%.10f\t\n", final.XC)
	}
	fmt.Fprintf(w, "%stotal\t%.10f%s\t\n", ui.Bold(), final.Total, ui.Reset())
	w.Flush()

	fmt.Fprintf(out, "orbital error %s%.2e%s", ui.Dim(), res.OrbitalError, ui.Reset())
	if res.PropertyError < 1e300 {
		fmt.Fprintf(out, ", energy change %s%.2e%s", ui.Dim(), res.PropertyError, ui.Reset())
	}
	fmt.Fprintln(out)
}
