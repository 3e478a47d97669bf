package main

import (
	"fmt"
	"io"
	"os"

	"github.com/JustinAzoff/pcapindex/pcap_indexer"
	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
)

const version = "0.2.0"

type config struct {
	verify            string
	metricsFile       string
	allowUnknownMagic bool
	progressInterval  uint64
	logLevel          string
	logFormat         string
	showVersion       bool
}

var cfg config

func init() {
	f := RootCmd.Flags()
	f.StringVar(&cfg.verify, "verify", "", "path to an existing index to compare against")
	f.StringVar(&cfg.metricsFile, "metrics-file", "", "write prometheus metrics to this file when done")
	f.BoolVar(&cfg.allowUnknownMagic, "allow-unknown-magic", false, "index captures with an unrecognised magic, dropping sub-second time")
	f.Uint64Var(&cfg.progressInterval, "progress-interval", pcap_indexer.DefaultProgressInterval, "packets between progress lines")
	f.StringVar(&cfg.logLevel, "log-level", "info", "log level")
	f.StringVar(&cfg.logFormat, "log-format", "text", "log format: text or json")
	f.BoolVarP(&cfg.showVersion, "version", "v", false, "show the version and exit")
}

// RootCmd indexes the capture on stdin and writes the index to stdout.
var RootCmd = &cobra.Command{
	Use:   "index_pcap",
	Short: "`index_pcap` builds a timestamp/offset index of a pcap",
	Long: "`index_pcap` reads a pcap from stdin and writes one 16 byte entry per packet\n" +
		"(64bit LE nanosecond epoch time, 64bit LE byte offset) to stdout.\n\n" +
		"Example: cat test8k.pcap | index_pcap > test8k.index",
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.showVersion {
			fmt.Fprintln(cmd.OutOrStderr(), "index_pcap", version)
			return nil
		}
		log, err := configureLogging(cfg, os.Stderr)
		if err != nil {
			return err
		}
		return run(cfg, os.Stdin, os.Stdout, log)
	},
}

func configureLogging(cfg config, w io.Writer) (*logrus.Logger, error) {
	log := logrus.New()
	log.SetOutput(w)
	level, err := logrus.ParseLevel(cfg.logLevel)
	if err != nil {
		return nil, err
	}
	log.SetLevel(level)
	switch cfg.logFormat {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	case "text", "":
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, fmt.Errorf("unsupported logging formatter: %q", cfg.logFormat)
	}
	return log, nil
}

func run(cfg config, in io.Reader, out io.Writer, log *logrus.Logger) (err error) {
	opts := pcap_indexer.Options{
		AllowUnknownMagic: cfg.allowUnknownMagic,
		ProgressInterval:  cfg.progressInterval,
		Log:               log,
	}

	if cfg.verify != "" {
		vf, err := os.Open(cfg.verify)
		if err != nil {
			return err
		}
		defer vf.Close()
		opts.Verify = vf
	}

	var reg *prometheus.Registry
	if cfg.metricsFile != "" {
		reg = prometheus.NewRegistry()
		opts.Metrics = pcap_indexer.NewMetrics(reg)
		defer func() {
			err = multierr.Append(err, prometheus.WriteToTextfile(cfg.metricsFile, reg))
		}()
	}

	stats, err := pcap_indexer.IndexPCAP(in, out, opts)
	log.WithField("elapsed", stats.Elapsed).Infof("Indexed %s packets, %s of capture, %d verify mismatches",
		humanize.Comma(int64(stats.Packets)), humanize.Bytes(stats.Bytes), stats.Mismatches)
	return err
}

func main() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		os.Exit(1)
	}
}
