package main

import (
	"compress/bzip2"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/MrCodeEU/attendpass/pkg/logging"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

type model struct {
	Name string
	URL  string
}

// dlib models used by the recognition engine.
var models = []model{
	{
		Name: "shape_predictor_5_face_landmarks.dat",
		URL:  "http://dlib.net/files/shape_predictor_5_face_landmarks.dat.bz2",
	},
	{
		Name: "dlib_face_recognition_resnet_model_v1.dat",
		URL:  "http://dlib.net/files/dlib_face_recognition_resnet_model_v1.dat.bz2",
	},
	{
		Name: "mmod_human_face_detector.dat",
		URL:  "http://dlib.net/files/mmod_human_face_detector.dat.bz2",
	},
}

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Manage recognition models",
}

var modelsDownloadCmd = &cobra.Command{
	Use:   "download [dir]",
	Short: "Download the dlib models",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := cfg.Recognition.ModelPath
		if len(args) > 0 {
			dir = args[0]
		}
		return downloadModels(cmd.Context(), &http.Client{Timeout: 10 * time.Minute}, dir, cmd.ErrOrStderr())
	},
}

var modelsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show which models are installed",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Model directory: %s\n", cfg.Recognition.ModelPath)
		for _, m := range models {
			state := "missing"
			if _, err := os.Stat(filepath.Join(cfg.Recognition.ModelPath, m.Name)); err == nil {
				state = "installed"
			}
			fmt.Fprintf(out, "  %-45s %s\n", m.Name, state)
		}
	},
}

func init() {
	modelsCmd.AddCommand(modelsDownloadCmd, modelsListCmd)
	rootCmd.AddCommand(modelsCmd)
}

func downloadModels(ctx context.Context, client *http.Client, dir string, progress io.Writer) error {
	logging.Infof("Downloading models to: %s", dir)

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create model directory: %w", err)
	}

	for _, m := range models {
		target := filepath.Join(dir, m.Name)
		if _, err := os.Stat(target); err == nil {
			logging.Infof("Model %s already exists, skipping", m.Name)
			continue
		}

		if err := downloadAndExtract(ctx, client, m.URL, target, progress); err != nil {
			return fmt.Errorf("failed to download %s: %w", m.Name, err)
		}
		logging.Infof("Downloaded %s", m.Name)
	}

	logging.Info("All models are installed")
	return nil
}

// downloadAndExtract fetches a bzip2 archive and writes it decompressed. The
// target only appears once the download is complete.
func downloadAndExtract(ctx context.Context, client *http.Client, url, target string, progress io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bad status: %s", resp.Status)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), filepath.Base(target)+".*.part")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	bar := progressbar.NewOptions64(resp.ContentLength,
		progressbar.OptionSetWriter(progress),
		progressbar.OptionSetDescription(filepath.Base(target)),
		progressbar.OptionShowBytes(true),
		progressbar.OptionClearOnFinish(),
	)
	body := io.TeeReader(resp.Body, bar)

	if _, err := io.Copy(tmp, bzip2.NewReader(body)); err != nil {
		_ = tmp.Close()
		return err
	}
	_ = bar.Finish()
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), target)
}
