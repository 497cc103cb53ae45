package main

import (
	"os"

	"github.com/SlastyonArtyom/BotCore/cmd/botcore/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
