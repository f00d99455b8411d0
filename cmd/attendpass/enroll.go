package main

import (
	"context"
	"fmt"

	"github.com/MrCodeEU/attendpass/pkg/enrollment"
	"github.com/MrCodeEU/attendpass/pkg/logging"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var (
	enrollSource  string
	enrollSamples int
)

var enrollCmd = &cobra.Command{
	Use:   "enroll <name>",
	Short: "Enroll a new identity from the frame source",
	Long: `Capture several frames that contain exactly one face, average their
encodings and store the result as a new identity.

Enrolling an existing name again creates a second identity. A face that
already matches a differently named identity is rejected.`,
	Args: cobra.ExactArgs(1),
	RunE: runEnroll,
}

func init() {
	enrollCmd.Flags().StringVar(&enrollSource, "source", "", "Frame directory (default from config)")
	enrollCmd.Flags().IntVar(&enrollSamples, "samples", 0, "Number of samples (default from config)")
	rootCmd.AddCommand(enrollCmd)
}

func runEnroll(cmd *cobra.Command, args []string) error {
	name := args[0]
	samples := cfg.Enrollment.Samples
	if enrollSamples > 0 {
		samples = enrollSamples
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	engine, detector, err := newEngine(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = engine.Close() }()

	source, err := openSource(enrollSource)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Enrolling '%s'. Please face the camera.\n", name)
	bar := progressbar.NewOptions(samples,
		progressbar.OptionSetWriter(cmd.ErrOrStderr()),
		progressbar.OptionSetDescription("Capturing samples"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionClearOnFinish(),
	)

	enroller := enrollment.New(detector, engine, store, nil, nil, enrollment.Options{
		Samples:        samples,
		MatchThreshold: cfg.Recognition.MatchThreshold,
		PollInterval:   cfg.PollInterval(),
		OnSample:       func(collected, _ int) { _ = bar.Set(collected) },
		OnReject:       func(err error) { logging.Debugf("Sample rejected: %v", err) },
	})

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.EnrollmentTimeout())
	defer cancel()

	identity, err := enroller.Enroll(ctx, name, source)
	_ = bar.Finish()
	if err != nil {
		return fmt.Errorf("enrollment failed: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Enrolled '%s' (id %s)\n", identity.Name, identity.ID)
	return nil
}
