// Command lettucespeak is a typing toy: every key you press is spoken aloud
// by a voice chosen for that letter, coloured by the mood of what you type.
package main

import (
	"os"

	"github.com/MrWong99/lettucespeak/cmd/lettucespeak/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
