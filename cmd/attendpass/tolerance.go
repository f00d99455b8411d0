package main

import (
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/MrCodeEU/attendpass/pkg/camera"
	"github.com/MrCodeEU/attendpass/pkg/logging"
	"github.com/MrCodeEU/attendpass/pkg/matcher"
	"github.com/MrCodeEU/attendpass/pkg/vision"
	"github.com/spf13/cobra"
)

var toleranceValues []float64

var toleranceCmd = &cobra.Command{
	Use:   "tolerance [dir]",
	Short: "Compare encodings pairwise to pick a match threshold",
	Long: `Compute the distance between every pair of encodings and show which
pairs each tolerance accepts.

With a directory, every image in it is encoded. Images in a subdirectory
belong to the person named by it; images at the top level belong to the
person named by the file, without trailing digits (alice1.jpg, alice2.jpg).
Without a directory the enrolled identities are compared, grouped by name.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTolerance,
}

func init() {
	toleranceCmd.Flags().Float64SliceVar(&toleranceValues, "tolerances", matcher.DefaultTolerances, "Tolerances to compare")
	rootCmd.AddCommand(toleranceCmd)
}

func runTolerance(cmd *cobra.Command, args []string) error {
	var (
		samples []matcher.Sample
		err     error
	)
	if len(args) == 1 {
		samples, err = encodeSamples(cmd, args[0])
	} else {
		samples, err = enrolledSamples(cmd)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	pairs := matcher.Pairs(samples)
	if len(pairs) == 0 {
		fmt.Fprintln(out, "Need at least two encodings to compare.")
		return nil
	}
	writeTolerances(out, pairs, matcher.Evaluate(pairs, toleranceValues))
	return nil
}

func enrolledSamples(cmd *cobra.Command) ([]matcher.Sample, error) {
	store, err := openStore()
	if err != nil {
		return nil, err
	}
	defer func() { _ = store.Close() }()

	identities, err := store.LookupIdentities(cmd.Context())
	if err != nil {
		return nil, err
	}
	samples := make([]matcher.Sample, 0, len(identities))
	for _, identity := range identities {
		samples = append(samples, matcher.Sample{
			Label:    identity.Name + " (" + shortID(identity.ID) + ")",
			Subject:  identity.Name,
			Encoding: identity.Encoding,
		})
	}
	return samples, nil
}

func encodeSamples(cmd *cobra.Command, dir string) ([]matcher.Sample, error) {
	engine, detector, err := newEngine(cmd.Context())
	if err != nil {
		return nil, err
	}
	defer func() { _ = engine.Close() }()

	var samples []matcher.Sample
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isImage(path) {
			return nil
		}
		if err := cmd.Context().Err(); err != nil {
			return err
		}

		frame, err := camera.ReadFrame(path)
		if err != nil {
			logging.Warnf("Skipping %s: %v", path, err)
			return nil
		}
		face, ok := vision.Extract(detector, frame)
		if !ok {
			logging.Warnf("Skipping %s: no face found", path)
			return nil
		}
		enc, ok := engine.Encode(frame, face)
		if !ok {
			logging.Warnf("Skipping %s: face could not be encoded", path)
			return nil
		}

		rel, _ := filepath.Rel(dir, path)
		samples = append(samples, matcher.Sample{Label: rel, Subject: subjectOf(rel), Encoding: enc})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read samples from %s: %w", dir, err)
	}
	return samples, nil
}

// subjectOf names the person in a sample path relative to the sample root.
func subjectOf(rel string) string {
	if parts := strings.Split(filepath.ToSlash(rel), "/"); len(parts) > 1 {
		return parts[0]
	}
	stem := strings.TrimSuffix(rel, filepath.Ext(rel))
	if trimmed := strings.TrimRight(stem, "0123456789_- "); trimmed != "" {
		return trimmed
	}
	return stem
}

func isImage(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg", ".png":
		return true
	}
	return false
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func writeTolerances(out io.Writer, pairs []matcher.Pair, stats []matcher.ToleranceStats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	fmt.Fprint(w, "PAIR\tSAME\tDISTANCE")
	for _, s := range stats {
		fmt.Fprintf(w, "\t%.2f", s.Tolerance)
	}
	fmt.Fprintln(w)
	for _, p := range pairs {
		same := "no"
		if p.Same {
			same = "yes"
		}
		fmt.Fprintf(w, "%s vs %s\t%s\t%.4f", p.A, p.B, same, p.Distance)
		for _, s := range stats {
			mark := "✘"
			if p.Accepted(s.Tolerance) {
				mark = "✔"
			}
			fmt.Fprintf(w, "\t%s", mark)
		}
		fmt.Fprintln(w)
	}
	_ = w.Flush()

	fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TOLERANCE\tFALSE REJECTS\tFALSE ACCEPTS")
	for _, s := range stats {
		fmt.Fprintf(w, "%.2f\t%d/%d\t%d/%d\n", s.Tolerance, s.FalseRejects, s.SamePairs, s.FalseAccepts, s.OtherPairs)
	}
	_ = w.Flush()
	fmt.Fprintf(out, "\nCurrent match threshold: %.2f\n", cfg.Recognition.MatchThreshold)
}
