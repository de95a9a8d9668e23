// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package format

import (
	"fmt"
	"strings"

	"github.com/fatih/color"

	"github.com/vulntor/fwrecon/pkg/recon"
)

// PrintTotalFailureSummary prints a fatal run error with suggestions
// Example output:
//
//	✗ Failed to scan: invalid target "300.1.1.1"
//
//	💡 Suggestions:
//	  → Scan a single host:        fwrecon scan 192.168.1.10
func (f *formatter) PrintTotalFailureSummary(operation string, err error, errorCode string) error {
	if f.quiet {
		return nil
	}

	if f.IsStructured() {
		return f.printStructured(map[string]any{
			"success":    false,
			"operation":  operation,
			"error":      err.Error(),
			"error_code": errorCode,
		})
	}

	var sb strings.Builder
	msg := fmt.Sprintf("✗ Failed to %s: %v", operation, err)
	if f.color {
		sb.WriteString(color.RedString("%s\n", msg))
	} else {
		sb.WriteString(msg + "\n")
	}

	if suggestions := GetSuggestions(errorCode, operation); len(suggestions) > 0 {
		sb.WriteString("\n💡 Suggestions:\n")
		for _, s := range suggestions {
			fmt.Fprintf(&sb, "  → %s\n", s)
		}
	}

	_, writeErr := f.stderr.Write([]byte(sb.String()))
	return writeErr
}

var suggestionGenerators = map[string]func(string) []string{
	recon.ErrorCodeInvalidTarget: func(string) []string {
		return []string{
			"Scan a single host:         fwrecon scan 192.168.1.10",
			"Scan a block:               fwrecon scan 10.0.0.0/24",
			"Scan a domain:              fwrecon scan example.com",
		}
	},
	recon.ErrorCodeInvalidProfile: func(string) []string {
		return []string{
			"List available profiles:    fwrecon profiles",
			"Select explicitly:          fwrecon scan <target> --profiles SYN,ACK",
		}
	},
	recon.ErrorCodeCapabilityUnavailable: func(string) []string {
		return []string{
			"Install nmap 7.0 or newer and make sure it is on PATH",
			"Raw-socket techniques need root: fwrecon scan <target> --sudo",
			"Fall back to TCP connect:   fwrecon scan <target> --engine connect",
		}
	},
	recon.ErrorCodeRunFailure: func(operation string) []string {
		return []string{
			fmt.Sprintf("Retry with verbose logs:    fwrecon %s <target> -vv", operation),
			fmt.Sprintf("Enable progress output:     fwrecon %s <target> --progress", operation),
		}
	},
}

// GetSuggestions returns actionable hints based on error code and operation.
func GetSuggestions(errorCode, operation string) []string {
	if generator, ok := suggestionGenerators[errorCode]; ok {
		return generator(operation)
	}
	return nil
}
