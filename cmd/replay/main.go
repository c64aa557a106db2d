// Command replay runs the detection log through the tracker once, from the
// first line, and prints the resulting identity table and lost pool.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"

	"github.com/kdimtricp/lostfound/internal/app"
	"github.com/kdimtricp/lostfound/internal/config"
	"github.com/kdimtricp/lostfound/internal/logger"
	"github.com/kdimtricp/lostfound/internal/logreader"
)

func main() {
	var (
		configPath = flag.String("config", os.Getenv("TRACKER_CONFIG"), "Path to the YAML config file")
		logPath    = flag.String("log", "", "Detection log to replay (overrides the config)")
		outDir     = flag.String("out", "", "Directory for the snapshot and artifacts (default: a new temp dir)")
		rematch    = flag.String("rematch", "", "Override lost-pool rematch (true or false)")
		verbose    = flag.Bool("v", false, "Log every cycle event")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}
	if *logPath != "" {
		cfg.Paths.Log = *logPath
	}
	if *rematch != "" {
		v, err := strconv.ParseBool(*rematch)
		if err != nil {
			log.Fatal("Invalid -rematch:", err)
		}
		cfg.LostPoolRematch = &v
	}
	if *outDir == "" {
		if *outDir, err = os.MkdirTemp("", "lostfound-replay-"); err != nil {
			log.Fatal("Failed to create output directory:", err)
		}
	}
	cfg.ReadStrategy = string(logreader.StrategyRebuild)
	cfg.Paths.Snapshot = filepath.Join(*outDir, "identities.txt")
	cfg.Paths.Artifacts = filepath.Join(*outDir, "lost_objects")
	// Replays never touch the history database or delete frame images.
	cfg.Database.Type = ""
	if err := config.Validate(cfg); err != nil {
		log.Fatal(err)
	}
	*cfg.RetentionWindowFrames = 1 << 30

	lg := logger.Nop()
	if *verbose {
		if lg, err = logger.New("development"); err != nil {
			log.Fatal(err)
		}
	}

	a, err := app.New(cfg, lg)
	if err != nil {
		log.Fatal("Failed to initialize tracker:", err)
	}
	defer a.Close()

	rep, err := a.Engine.RunCycle(context.Background())
	if err != nil {
		log.Fatal("Replay failed:", err)
	}

	fmt.Printf("Replayed %s: %d frames, %d dropped detections, %d skipped lines\n",
		cfg.Paths.Log, rep.Events, rep.Dropped, rep.Warnings)
	fmt.Printf("created=%d updated=%d reactivated=%d lost=%d\n\n",
		rep.Created, rep.Updated, rep.Reactivated, rep.Lost)

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATE\tFIRST\tLAST\tCOLOR\tCONFIDENCE")
	for _, ident := range a.Engine.Tracker().Identities() {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t%.2f\n",
			ident.ID, ident.State, ident.FirstSeenFrame, ident.LastSeenFrame, ident.Signature, ident.Confidence)
	}
	for _, rec := range a.Engine.Tracker().Lost() {
		ident := rec.Identity
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t%.2f\n",
			ident.ID, ident.State, ident.FirstSeenFrame, ident.LastSeenFrame, ident.Signature, ident.Confidence)
	}
	tw.Flush()

	fmt.Printf("\nSnapshot: %s\nArtifacts: %s\n", cfg.Paths.Snapshot, cfg.Paths.Artifacts)
}
