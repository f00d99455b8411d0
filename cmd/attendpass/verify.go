package main

import (
	"fmt"
	"io"
	"time"

	"github.com/MrCodeEU/attendpass/pkg/attendance"
	"github.com/MrCodeEU/attendpass/pkg/matcher"
	"github.com/MrCodeEU/attendpass/pkg/metrics"
	"github.com/MrCodeEU/attendpass/pkg/server"
	"github.com/MrCodeEU/attendpass/pkg/storage"
	"github.com/MrCodeEU/attendpass/pkg/verification"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	verifySource string
	verifyOnce   bool
	verifyDryRun bool
	verifyListen string
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Run the verification kiosk",
	Long: `Run verification sessions back to back against the frame source. A
session confirms when the face matches an enrolled identity and a blink is
seen within the liveness window; attendance is then recorded once per day.

With --listen the current status, the last frame and Prometheus metrics are
served over HTTP for a display shell.`,
	Args: cobra.NoArgs,
	RunE: runVerify,
}

func init() {
	verifyCmd.Flags().StringVar(&verifySource, "source", "", "Frame directory (default from config)")
	verifyCmd.Flags().BoolVar(&verifyOnce, "once", false, "Run a single session and exit")
	verifyCmd.Flags().BoolVar(&verifyDryRun, "dry-run", false, "Do not persist attendance")
	verifyCmd.Flags().StringVar(&verifyListen, "listen", "", "Status server address (default from config)")
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	var store storage.Store
	var err error
	if verifyDryRun {
		store, err = openDryRunStore(ctx)
	} else {
		store, err = openStore()
	}
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	engine, detector, err := newEngine(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = engine.Close() }()

	source, err := openSource(verifySource)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.NewPipeline(registry)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	board := verification.NewStatusBoard()
	orch := verification.New(detector, engine,
		matcher.NewGallery(store, cfg.GalleryCacheTTL()),
		attendance.NewCommitter(store, m),
		verification.ParamsFromConfig(cfg),
		verification.WithMetrics(m),
		verification.WithStatusBoard(board))

	out := cmd.OutOrStdout()
	if verifyOnce {
		outcome, err := orch.Run(ctx, source)
		if err != nil {
			return err
		}
		printOutcome(out, outcome)
		if outcome.Err != nil {
			return outcome.Err
		}
		return nil
	}

	listen := cfg.Server.Listen
	if verifyListen != "" {
		listen = verifyListen
	}

	g, gctx := errgroup.WithContext(ctx)
	kiosk := verification.NewKiosk(orch, source, cfg.ResultHold())
	kiosk.OnOutcome = func(o verification.Outcome) { printOutcome(out, o) }
	g.Go(func() error { return kiosk.Run(gctx) })

	if listen != "" {
		srv := server.New(listen, board, registry)
		g.Go(func() error { return srv.Run(gctx) })
	}

	fmt.Fprintln(out, "Kiosk running. Press Ctrl+C to stop.")
	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func printOutcome(w io.Writer, o verification.Outcome) {
	at := time.Now().Format("15:04:05")
	switch {
	case o.Confirmed() && o.AlreadyRecorded:
		fmt.Fprintf(w, "%s  %-9s %s: %s\n", at, o.State, o.IdentityName, verification.MessageFor(verification.ReasonAlreadyRecorded))
	case o.Confirmed():
		fmt.Fprintf(w, "%s  %-9s Attendance recorded for %s\n", at, o.State, o.IdentityName)
	case o.Err != nil && o.FaceSeen:
		fmt.Fprintf(w, "%s  %-9s %s\n", at, o.State, o.Err.Message)
	}
}

