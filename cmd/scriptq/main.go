package main

import (
	"github.com/docker/docker/pkg/reexec"

	"github.com/Paintersrp/scriptq/internal/cli"
	"github.com/Paintersrp/scriptq/internal/metrics"
)

func main() {
	// Forked children start here and exec their target.
	if reexec.Init() {
		return
	}
	metrics.EmitBuildInfo()
	cli.Execute()
}
