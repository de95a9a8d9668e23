package commands

import (
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"

	"github.com/vulntor/fwrecon/pkg/recon"
)

// progressLogger prints one line per progress event. Stealth-stage events
// arrive concurrently.
type progressLogger struct {
	mu  sync.Mutex
	out io.Writer
}

func newProgressLogger(out io.Writer) *progressLogger {
	return &progressLogger{out: out}
}

func (p *progressLogger) OnEvent(ev recon.ProgressEvent) {
	status := ev.Status
	switch ev.Status {
	case recon.StatusFailed:
		status = color.RedString("%s", ev.Status)
	case string(recon.StatusDegraded), recon.StatusSkipped:
		status = color.YellowString("%s", ev.Status)
	case recon.StatusDone:
		status = color.GreenString("%s", ev.Status)
	}

	line := fmt.Sprintf("[%s] %-17s", ev.Timestamp.Format("15:04:05"), ev.Phase)
	if ev.Profile != "" {
		line += fmt.Sprintf(" %-13s", ev.Profile)
	}
	line += " " + status
	if ev.Message != "" {
		line += ": " + ev.Message
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = fmt.Fprintln(p.out, line)
}
