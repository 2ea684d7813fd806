package main

import (
	"flag"
	"log"

	"github.com/danmuck/vitalrelay/internal/config"
	"github.com/danmuck/vitalrelay/internal/sensor"
)

const defaultPath = "cmd/vitalrelay/config.toml"

func main() {
	output := flag.String("output", defaultPath, "output path for config template")
	validate := flag.Bool("validate", false, "validate an existing config file")
	input := flag.String("input", defaultPath, "config path for validation")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	if *validate {
		cfg, err := config.Load(*input)
		if err != nil {
			log.Fatal(err)
		}
		log.Printf("Validated config at %s (relay=%s simulate=%t)", *input, cfg.Relay.URL, cfg.Sensor.Simulate)
		if !cfg.Sensor.Simulate || cfg.Sensor.Profile != "" {
			profile, err := sensor.LoadProfile(cfg.Sensor.Profile)
			if err != nil {
				log.Fatal(err)
			}
			log.Printf("Validated sensor profile %s: %d commands, params=%v", cfg.Sensor.Profile, len(profile.Lines), profile.Params)
		}
		return
	}

	if err := config.WriteTemplate(*output, *force); err != nil {
		log.Fatal(err)
	}
	log.Printf("Wrote config template to %s", *output)
}
