package format

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"

	"github.com/vulntor/fwrecon/pkg/portset"
	"github.com/vulntor/fwrecon/pkg/probe"
	"github.com/vulntor/fwrecon/pkg/recon"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("170"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	boxStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("238")).Padding(0, 1)
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	headerOrder = []string{"Target", "Run", "Status", "Duration", "Ports", "Profiles"}
)

// PrintReport writes the run in the formatter's mode. Table mode shows a
// header box, one row per port with every technique's state, the rationale
// per port and any failures.
func (f *formatter) PrintReport(r *recon.RunReport) error {
	if r == nil {
		return nil
	}
	if f.IsStructured() {
		return f.printStructured(r)
	}

	if !f.quiet {
		if _, err := fmt.Fprintln(f.stdout, f.header(r)); err != nil {
			return err
		}
	}

	headers := append([]string{"Port"}, r.Profiles...)
	headers = append(headers, "Classification", "Confidence", "Service")
	rows := make([][]string, 0, len(r.Verdicts))
	for _, v := range r.Verdicts {
		row := []string{fmt.Sprint(v.Port)}
		for _, name := range r.Profiles {
			row = append(row, stateLabel(v.States[name]))
		}
		row = append(row, f.classLabel(v.Classification), string(v.Confidence), serviceLabel(v))
		rows = append(rows, row)
	}
	if err := f.PrintTable(headers, rows); err != nil {
		return err
	}
	if f.quiet {
		return nil
	}

	var sb strings.Builder
	if len(r.Verdicts) > 0 {
		sb.WriteString("\nRationale:\n")
		for _, v := range r.Verdicts {
			fmt.Fprintf(&sb, "  %d: %s\n", v.Port, v.Rationale)
		}
	}
	if r.OS != "" {
		fmt.Fprintf(&sb, "\nOS guess: %s\n", r.OS)
	}
	if len(r.Indicators) > 0 {
		sb.WriteString("\nFirewall indicators:\n")
		for _, ind := range r.Indicators {
			line := "  ! " + ind
			if f.color {
				line = color.YellowString("%s", line)
			}
			sb.WriteString(line + "\n")
		}
	}
	writeRoutes(&sb, r.Routes)
	if len(r.Failures) > 0 {
		sb.WriteString("\nFailed techniques:\n")
		for _, fl := range r.Failures {
			line := fmt.Sprintf("  ✗ %s (%s): %s after %d attempt(s)", fl.Profile, fl.Stage, fl.Reason, fl.Attempts)
			if fl.Error != "" {
				line += ": " + fl.Error
			}
			if f.color {
				line = color.RedString("%s", line)
			}
			sb.WriteString(line + "\n")
		}
	}
	if len(r.DegradedStages) > 0 {
		fmt.Fprintf(&sb, "\nDegraded stages: %s\n", strings.Join(r.DegradedStages, ", "))
	}
	if len(r.Notes) > 0 {
		sb.WriteString("\nNotes:\n")
		for _, n := range r.Notes {
			fmt.Fprintf(&sb, "  - %s\n", n)
		}
	}
	sb.WriteString("\n" + f.countsLine(r) + "\n")

	_, err := f.stdout.Write([]byte(sb.String()))
	return err
}

func writeRoutes(sb *strings.Builder, routes map[string][]probe.Hop) {
	if len(routes) == 0 {
		return
	}
	hosts := make([]string, 0, len(routes))
	for h := range routes {
		hosts = append(hosts, h)
	}
	sort.Strings(hosts)

	sb.WriteString("\nRoute:\n")
	for _, h := range hosts {
		fmt.Fprintf(sb, "  %s\n", h)
		for _, hop := range routes[h] {
			addr := hop.Address
			if hop.Name != "" {
				addr = fmt.Sprintf("%s (%s)", hop.Name, hop.Address)
			}
			rtt := "--"
			if hop.RTT > 0 {
				rtt = fmt.Sprintf("%.2f ms", hop.RTT)
			}
			fmt.Fprintf(sb, "    %2d  %-10s %s\n", hop.TTL, rtt, addr)
		}
	}
}

func (f *formatter) header(r *recon.RunReport) string {
	values := map[string]string{
		"Target":   fmt.Sprintf("%s (%s)", r.Target, r.TargetKind),
		"Run":      r.ID,
		"Status":   string(r.Status),
		"Duration": r.Duration().Round(time.Millisecond).String(),
		"Ports":    fmt.Sprintf("%s (%s)", portset.New(r.Ports...).String(), r.PortSource),
		"Profiles": strings.Join(r.Profiles, ", "),
	}
	if len(r.Hosts) > 0 {
		values["Target"] += fmt.Sprintf(", %d live host(s)", len(r.Hosts))
	}

	lines := make([]string, 0, len(headerOrder)+1)
	if f.color {
		lines = append(lines, titleStyle.Render("fwrecon report"))
	} else {
		lines = append(lines, "fwrecon report")
	}
	for _, k := range headerOrder {
		label := fmt.Sprintf("%-9s", k+":")
		val := values[k]
		if f.color {
			label = labelStyle.Render(label)
			if k == "Status" {
				val = statusStyle(r.Status).Render(val)
			}
		}
		lines = append(lines, label+" "+val)
	}

	block := strings.Join(lines, "\n")
	if f.color {
		return boxStyle.Render(block)
	}
	return block + "\n"
}

func statusStyle(s recon.Status) lipgloss.Style {
	if s == recon.StatusCompleted {
		return okStyle
	}
	return warnStyle
}

func (f *formatter) countsLine(r *recon.RunReport) string {
	counts := r.ClassificationCounts()
	keys := make([]string, 0, len(counts))
	for c := range counts {
		keys = append(keys, string(c))
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %d", k, counts[recon.Classification(k)]))
	}
	line := fmt.Sprintf("Summary: %d port(s), %d failure(s)", len(r.Verdicts), len(r.Failures))
	if len(parts) > 0 {
		line += " | " + strings.Join(parts, ", ")
	}
	return line
}

func (f *formatter) classLabel(c recon.Classification) string {
	if !f.color {
		return string(c)
	}
	switch c {
	case recon.ClassOpenUnfiltered:
		return color.GreenString("%s", c)
	case recon.ClassStatefulFirewall, recon.ClassStatelessFilter:
		return color.YellowString("%s", c)
	case recon.ClassInconsistent:
		return color.MagentaString("%s", c)
	default:
		return string(c)
	}
}

func stateLabel(s probe.State) string {
	switch s {
	case "":
		return "-"
	case probe.StateOpenFiltered:
		return "open|filtered"
	default:
		return string(s)
	}
}

func serviceLabel(v recon.PortVerdict) string {
	switch {
	case v.Service != "" && v.Version != "":
		return v.Service + " " + v.Version
	case v.Service != "":
		return v.Service
	default:
		return "-"
	}
}
