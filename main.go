// Command crawlctl is the entrypoint for the distributed web-crawling
// control plane: submission, the durable broker, the cron scheduler, the
// retry poller, worker processing, and operator tooling.
package main

import (
	"fmt"
	"os"

	"github.com/jonesrussell/crawlctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
