package recon

import (
	"sort"

	"github.com/vulntor/fwrecon/pkg/probe"
	"github.com/vulntor/fwrecon/pkg/profile"
)

// Run-level firewall indicators.
const (
	IndicatorHighFiltered   = "High percentage of filtered ports"
	IndicatorSequentialOpen = "Unusual sequential port pattern"
)

const (
	filteredRatioThreshold   = 0.7
	sequentialRatioThreshold = 0.8
)

// FirewallIndicators inspects all verdicts of a run together. A port counts
// as filtered when every technique that answered saw filtered or no response,
// and as open when SYN reports open.
func FirewallIndicators(verdicts []PortVerdict) []string {
	if len(verdicts) == 0 {
		return nil
	}

	var indicators []string
	filtered := 0
	var open []int
	for _, v := range verdicts {
		e := Evidence(v.States)
		if silentOnly(e) {
			filtered++
		}
		if e.kind(profile.KindSYN) == probe.StateOpen {
			open = append(open, v.Port)
		}
	}

	if float64(filtered)/float64(len(verdicts)) > filteredRatioThreshold {
		indicators = append(indicators, IndicatorHighFiltered)
	}

	if len(open) > 1 {
		sort.Ints(open)
		sequential := 0
		for i := 0; i+1 < len(open); i++ {
			if open[i+1]-open[i] == 1 {
				sequential++
			}
		}
		if float64(sequential)/float64(len(open)) > sequentialRatioThreshold {
			indicators = append(indicators, IndicatorSequentialOpen)
		}
	}
	return indicators
}

func silentOnly(e Evidence) bool {
	known := e.known()
	if len(known) == 0 {
		return false
	}
	for _, name := range known {
		if s := e[name]; s != probe.StateFiltered && s != probe.StateOpenFiltered {
			return false
		}
	}
	return true
}
