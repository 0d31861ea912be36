package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/danmuck/altbit/internal/logging"
	"github.com/danmuck/altbit/internal/sim"
	"github.com/rs/zerolog/log"
)

func main() {
	configPath := flag.String("config", "", "scenario TOML file (defaults apply when empty)")
	seed := flag.Int64("seed", 0, "override scenario seed")
	messages := flag.Int("messages", 0, "override number of offered messages")
	loss := flag.Float64("loss", 0, "override loss probability")
	corrupt := flag.Float64("corrupt", 0, "override corruption probability")
	trace := flag.Bool("trace", false, "log every frame and event")
	asJSON := flag.Bool("json", false, "print the report as JSON")
	flag.Parse()

	if *trace {
		_ = os.Setenv(logging.EnvLogLevel, "trace")
	}
	logging.ConfigureRuntime()

	cfg := sim.DefaultConfig()
	if *configPath != "" {
		loaded, err := loadScenario(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "altsim: %v\n", err)
			os.Exit(2)
		}
		cfg = loaded
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "seed":
			cfg.Seed = *seed
		case "messages":
			cfg.Messages = *messages
		case "loss":
			cfg.LossProb = *loss
		case "corrupt":
			cfg.CorruptProb = *corrupt
		}
	})

	report, err := sim.Run(cfg, sim.WithLogger(log.Logger))
	if err != nil {
		fmt.Fprintf(os.Stderr, "altsim: %v\n", err)
		os.Exit(1)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(report)
	} else {
		printReport(report)
	}

	if err := report.Verify(); err != nil {
		fmt.Fprintf(os.Stderr, "altsim: %v\n", err)
		os.Exit(1)
	}
}

func printReport(r sim.Report) {
	fmt.Printf("elapsed          %v\n", r.Elapsed)
	fmt.Printf("offered          %d\n", r.Offered)
	fmt.Printf("accepted         %d\n", r.Accepted)
	fmt.Printf("dropped (busy)   %d\n", r.Dropped)
	fmt.Printf("delivered        %d\n", r.Delivered)
	fmt.Printf("transmissions    %d (retransmissions %d)\n", r.Sender.Transmissions, r.Sender.Retransmissions)
	fmt.Printf("acks             accepted %d, corrupt %d, stale %d\n", r.Sender.AcksAccepted, r.Sender.AcksCorrupt, r.Sender.AcksStale)
	fmt.Printf("receiver         corrupt %d, duplicates %d, ack resends %d\n", r.Receiver.Corrupt, r.Receiver.Duplicates, r.Receiver.AckResends)
	fmt.Printf("a->b             sent %d, lost %d, corrupted %d\n", r.Forward.Sent, r.Forward.Lost, r.Forward.Corrupted)
	fmt.Printf("b->a             sent %d, lost %d, corrupted %d\n", r.Reverse.Sent, r.Reverse.Lost, r.Reverse.Corrupted)
}
