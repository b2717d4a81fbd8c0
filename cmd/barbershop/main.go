// Command barbershop runs the barbershop booking backend. Without arguments
// it serves the HTTP API.
package main

import (
	// TIMEZONE must resolve in images without a zoneinfo database.
	_ "time/tzdata"

	"github.com/R3E-Network/barbershop/internal/cli"
)

func main() {
	cli.Execute()
}
