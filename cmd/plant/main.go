// Command plant replays a recorded drawing through the garden submission
// flow: export, classify, admit, and print what a visitor would see.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/zlnvch/garden/canvas"
	"github.com/zlnvch/garden/client"
	"github.com/zlnvch/garden/logging"
)

func main() {
	server := flag.String("server", "http://localhost:8080", "garden server base URL")
	strokesPath := flag.String("strokes", "", "JSON file with the strokes to draw")
	counterPath := flag.String("counter", ".garden-count.json", "file holding the local flower count")
	pixelRatio := flag.Float64("pixel-ratio", 2, "device pixel ratio of the drawing surface")
	timeout := flag.Duration("timeout", 90*time.Second, "classify and submit timeout")
	linger := flag.Duration("linger", 0, "how long to keep printing caption follow-ups")
	mode := flag.String("log", "release", "log mode (debug or release)")
	flag.Parse()

	if err := logging.Init(*mode); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logging.Sync()

	if *strokesPath == "" {
		fmt.Fprintln(os.Stderr, "-strokes is required")
		flag.Usage()
		os.Exit(2)
	}

	strokes, err := loadStrokes(*strokesPath)
	if err != nil {
		logging.Logger.Fatal("failed to load strokes", zap.Error(err))
	}

	surface := canvas.NewSurface(*pixelRatio)
	if err := replay(surface, strokes); err != nil {
		logging.Logger.Fatal("failed to draw strokes", zap.Error(err))
	}

	presenter := client.NewPresenter(func(v client.View) {
		fmt.Printf("[%s garden] %s\n", v.Garden, v.Caption)
	})
	defer presenter.Stop()

	controller := client.NewController(
		surface,
		client.NewHTTPGateway(*server, *timeout),
		client.NewFileCounter(*counterPath),
	)

	outcome, err := controller.Submit(context.Background())
	if err != nil {
		logging.Logger.Fatal("submission could not start", zap.Error(err))
	}

	presenter.Apply(outcome)
	printOutcome(outcome)

	if *linger > 0 {
		time.Sleep(*linger)
	}

	if !outcome.Accepted() {
		os.Exit(1)
	}
}

func printOutcome(o client.Outcome) {
	if o.Accepted() {
		fmt.Printf("accepted into %s (confidence %.3f): %s\n", o.Category, o.Result.Confidence(), o.URL)
		return
	}
	fmt.Printf("rejected: %s", o.Rejection)
	if o.CurrentCount > 0 {
		fmt.Printf(" (count %d)", o.CurrentCount)
	}
	if o.Err != nil {
		fmt.Printf(": %v", o.Err)
	}
	fmt.Println()
}
