// Validata - Line-Oriented Data File Validator
//
// Validata validates data files line by line against declarative rules and
// flags files whose size strays from their recorded history.
package main

import (
	"os"

	"github.com/ccollicutt/validata/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
