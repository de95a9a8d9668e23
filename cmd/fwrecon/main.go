package main

import (
	"context"
	"fmt"
	"os"

	"github.com/vulntor/fwrecon/cmd/fwrecon/commands"
	"github.com/vulntor/fwrecon/pkg/recon"
)

func main() {
	cmd := commands.NewCommand()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		if !commands.IsReported(err) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(recon.ExitCode(err))
	}
}
