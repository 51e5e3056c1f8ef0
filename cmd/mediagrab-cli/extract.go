package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/use-agent/mediagrab/extractor"
	"github.com/use-agent/mediagrab/models"
)

// filter selects candidates by type and URL substring.
type filter struct {
	mediaType string
	match     string
}

func (f *filter) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.mediaType, "type", "", "Only media of this type: image, video or audio")
	cmd.Flags().StringVar(&f.match, "match", "", "Only media whose URL contains this text")
}

func (f *filter) apply(list []models.MediaItem) ([]models.MediaItem, error) {
	var want models.MediaType
	if f.mediaType != "" {
		t, ok := models.ParseMediaType(f.mediaType)
		if !ok {
			return nil, fmt.Errorf("unknown media type %q", f.mediaType)
		}
		want = t
	}
	out := make([]models.MediaItem, 0, len(list))
	for _, m := range list {
		if want != models.MediaNone && m.Type != want {
			continue
		}
		if f.match != "" && !strings.Contains(m.URL, f.match) {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func newExtractCmd(opts *options) *cobra.Command {
	var (
		f      filter
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "extract [url]",
		Short: "List the media referenced by a page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, eng, err := opts.setup()
			if err != nil {
				return err
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

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(models.ExtractResponse{
					Success:    true,
					Media:      media,
					Count:      len(media),
					ScrapedURL: result.ScrapedURL,
					Title:      result.Title,
				})
			}
			printMedia(cmd.OutOrStdout(), result, media)
			return nil
		},
	}
	f.register(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the API JSON instead of a table")
	return cmd
}

func printMedia(out io.Writer, result *models.ExtractResult, media []models.MediaItem) {
	if result.Title != "" {
		fmt.Fprintf(out, "Title:  %s\n", result.Title)
	}
	fmt.Fprintf(out, "Source: %s\n", result.ScrapedURL)
	fmt.Fprintf(out, "Found:  %d media\n\n", len(media))
	if len(media) == 0 {
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tTYPE\tFILENAME\tSIZE\tURL")
	for i, m := range media {
		dims := m.Dimensions
		if dims == "" {
			dims = "-"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", i+1, m.Type, truncate(m.Filename, 40), dims, m.URL)
	}
	w.Flush()
}

// userError reduces err to its user-facing message.
func userError(err error, target models.Target) error {
	se := models.AsScrapeError(err, target)
	return fmt.Errorf("%s (%s)", se.Message, se.Code)
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
