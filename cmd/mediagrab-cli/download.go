package main

import (
	"fmt"
	"io"
	"path/filepath"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/use-agent/mediagrab/downloader"
	"github.com/use-agent/mediagrab/extractor"
	"github.com/use-agent/mediagrab/models"
)

func newDownloadCmd(opts *options) *cobra.Command {
	var (
		f           filter
		outDir      string
		mode        string
		concurrency int
	)
	cmd := &cobra.Command{
		Use:   "download [url]",
		Short: "Download the media referenced by a page",
		Long: `Extracts the media referenced by a page, keeps the candidates matching
--type and --match, and downloads them into --out. A failed file is
reported and the remaining files are still downloaded.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, eng, err := opts.setup()
			if err != nil {
				return err
			}
			if mode == "" {
				mode = cfg.Download.Mode
			}
			m, ok := downloader.ParseMode(mode)
			if !ok {
				return fmt.Errorf("unknown mode %q", mode)
			}
			if concurrency <= 0 {
				concurrency = cfg.Download.Concurrency
			}

			x := extractor.New(eng, extractor.Options{Timeout: cfg.Fetch.PageTimeout, MaxBody: cfg.Fetch.MaxPageBytes})
			result, err := x.Extract(cmd.Context(), args[0])
			if err != nil {
				return userError(err, models.TargetPage)
			}
			media, err := f.apply(result.Media)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(media) == 0 {
				fmt.Fprintln(out, "No matching media found.")
				return nil
			}

			sink, err := downloader.NewDirSink(outDir)
			if err != nil {
				return err
			}
			for i := range media {
				media[i].Selected = true
			}
			batch := downloader.NewBatch(downloader.FromMedia(media), m)
			batch.Observe(transitionPrinter(out, batch.Len()))

			orch := downloader.New(eng, downloader.Options{
				ItemTimeout:  cfg.Fetch.ItemTimeout,
				Concurrency:  concurrency,
				MaxItemBytes: cfg.Fetch.MaxItemBytes,
			})
			fmt.Fprintf(out, "Downloading %d file(s) to %s\n", batch.Len(), sink.Dir())
			summary := orch.Run(cmd.Context(), batch, sink)

			fmt.Fprintf(out, "\n%s: %d completed, %d failed, %d not started\n",
				summary.Status(), summary.Completed, summary.Failed, summary.Pending)
			if summary.Failed > 0 || summary.Pending > 0 {
				return fmt.Errorf("%d of %d downloads did not complete", summary.Failed+summary.Pending, summary.Total)
			}
			return nil
		},
	}
	f.register(cmd)
	cmd.Flags().StringVarP(&outDir, "out", "o", ".", "Directory to save files into")
	cmd.Flags().StringVar(&mode, "mode", "", "sequential or concurrent (default from config)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "Parallel downloads in concurrent mode (default from config)")
	return cmd
}

// transitionPrinter prints each state change; progress updates within the
// downloading state are skipped.
func transitionPrinter(out io.Writer, total int) func(models.DownloadRecord) {
	var mu sync.Mutex
	last := make(map[int]models.DownloadStatus, total)
	return func(r models.DownloadRecord) {
		mu.Lock()
		defer mu.Unlock()
		if last[r.Index] == r.Status {
			return
		}
		last[r.Index] = r.Status

		prefix := fmt.Sprintf("[%d/%d]", r.Index+1, total)
		switch r.Status {
		case models.StatusDownloading:
			fmt.Fprintf(out, "%s %s ... downloading\n", prefix, r.Filename)
		case models.StatusCompleted:
			fmt.Fprintf(out, "%s %s ... done (%s) -> %s\n", prefix, r.Filename, humanize.Bytes(uint64(r.Bytes)), filepath.Base(r.SavedAs))
		case models.StatusError:
			msg := "download failed"
			if r.Error != nil {
				msg = r.Error.Message
			}
			fmt.Fprintf(out, "%s %s ... error: %s\n", prefix, r.Filename, msg)
		}
	}
}
