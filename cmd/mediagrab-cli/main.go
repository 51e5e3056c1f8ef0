package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/use-agent/mediagrab/config"
	"github.com/use-agent/mediagrab/engine"
)

// options are the persistent flags shared by every command.
type options struct {
	configPath string
	userAgent  string
	proxy      string
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "mediagrab",
		Short:         "mediagrab - find and download the media on a web page",
		Long:          `Lists the images, videos and audio files referenced by a web page and downloads a selection of them.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "Config file (default: ./mediagrab.yaml if present)")
	root.PersistentFlags().StringVar(&opts.userAgent, "user-agent", "", "Override the browser User-Agent")
	root.PersistentFlags().StringVar(&opts.proxy, "proxy", "", "Proxy URL (http, https or socks5)")

	root.AddCommand(newExtractCmd(opts))
	root.AddCommand(newDownloadCmd(opts))
	return root
}

// setup loads configuration and builds the fetch engine.
func (o *options) setup() (*config.Config, *engine.HTTPEngine, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, nil, err
	}
	if o.userAgent != "" {
		cfg.Fetch.UserAgent = o.userAgent
	}
	if o.proxy != "" {
		cfg.Fetch.Proxy = o.proxy
	}
	eng, err := engine.NewHTTPEngine(engine.HTTPOptions{
		UserAgent: cfg.Fetch.UserAgent,
		Proxy:     cfg.Fetch.Proxy,
	})
	if err != nil {
		return nil, nil, err
	}
	return cfg, eng, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
