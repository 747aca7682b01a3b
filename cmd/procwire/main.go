package main

import (
	"github.com/procwire/procwire/internal/cli"
	"github.com/procwire/procwire/internal/metrics"
)

func main() {
	metrics.EmitBuildInfo()
	cli.Execute()
}
