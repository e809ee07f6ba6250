package main

import (
	// Paris timezone data for containers shipped without a zoneinfo db.
	_ "time/tzdata"

	"github.com/example/tgvmax-watcher/cmd"
)

func main() {
	cmd.Execute()
}
