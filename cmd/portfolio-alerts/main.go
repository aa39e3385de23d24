package main

import (
	_ "time/tzdata"

	"portfolio-alerts/internal/cli"
)

func main() {
	cli.Execute()
}
