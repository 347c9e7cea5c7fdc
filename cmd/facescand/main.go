// Command facescand runs the facescan daemon with the default configuration
// file, or the one named by FACESCAN_CONFIG.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"facescan/internal/config"
	"facescan/internal/daemonrun"
)

func main() {
	cfg, _, _, err := config.Load(os.Getenv("FACESCAN_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if err := daemonrun.Run(context.Background(), cfg, daemonrun.Options{}); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
