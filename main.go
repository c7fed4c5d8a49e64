package main

import (
	"log"

	"github.com/anoixa/media-vault/cmd"
	"github.com/anoixa/media-vault/config"
)

func main() {
	log.Printf("media vault %s (%s)", config.Version, config.CommitHash)
	cmd.Execute()
}
