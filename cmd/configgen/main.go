package main

import (
	"flag"
	"log"

	"github.com/danmuck/altbit/internal/config"
)

func main() {
	kind := flag.String("kind", config.RoleSender, "config kind: sender|receiver")
	output := flag.String("output", "cmd/altnode/config.toml", "output path for config template")
	validate := flag.Bool("validate", false, "validate an existing config file")
	input := flag.String("input", "cmd/altnode/config.toml", "config path for validation")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	if *validate {
		cfg, err := config.LoadNodeConfig(*input)
		if err != nil {
			log.Fatal(err)
		}
		log.Printf("Validated %s config at %s", cfg.Role, *input)
		return
	}

	if err := config.WriteTemplate(*output, *kind, *force); err != nil {
		log.Fatal(err)
	}
	log.Printf("Wrote %s config template to %s", *kind, *output)
}
