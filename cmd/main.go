package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brettbedarf/httpdirfs-go/config"
	"github.com/brettbedarf/httpdirfs-go/internal/util"
	"github.com/brettbedarf/httpdirfs-go/server"
	flag "github.com/spf13/pflag"
)

func main() {
	var (
		url          string
		metaCacheTTL time.Duration
		proxy        string
		verbose      int
		help         bool
	)

	flag.StringVar(&url, "url", "", "Required. Base URL of the HTTP(S) server to mount.")
	flag.DurationVar(&metaCacheTTL, "meta-cache-ttl", config.DefaultMetaCacheTTL, "Freshness window for cached directory listings.")
	flag.StringVar(&proxy, "proxy", "", "Optional proxy URL used for all outgoing requests.")
	flag.IntVarP(&verbose, "verbose", "v", 3, "Log verbosity level between 1 (error) and 5 (trace). Default is 3 (info).")
	flag.BoolVarP(&help, "help", "h", false, "Print help and exit.")
	flag.CommandLine.Init(os.Args[0], flag.ContinueOnError)
	if err := flag.CommandLine.Parse(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if help {
		fmt.Fprintln(os.Stderr, "Usage: httpdirfs-go --url=<s> [--meta-cache-ttl=<d>] [--proxy=<s>] <mountpoint>")
		flag.PrintDefaults()
		os.Exit(0)
	}

	if verbose < 1 {
		verbose = 1
	}
	if verbose > 5 {
		verbose = 5
	}
	logLvls := [5]util.LogLevel{util.ErrorLevel, util.WarnLevel, util.InfoLevel, util.DebugLevel, util.TraceLevel}
	logLvl := logLvls[verbose-1]
	util.InitializeLogger(logLvl)
	logger := util.GetLogger("main")

	if url == "" {
		logger.Error().Msg("--url is required")
		os.Exit(1)
	}

	mountPoint := flag.Arg(0)
	if mountPoint == "" {
		logger.Error().Msg("mount point not specified; it must be passed as the positional argument")
		os.Exit(1)
	}

	cfg := config.NewConfig(&config.ConfigOverride{
		URL:          &url,
		MetaCacheTTL: &metaCacheTTL,
		Proxy:        &proxy,
		LogLvl:       &logLvl,
	})

	fs, err := server.New(cfg)
	if err != nil {
		logger.Error().Err(err).Msg("failed to initialize filesystem")
		os.Exit(1)
	}

	if err := fs.Serve(mountPoint); err != nil {
		logger.Error().Err(err).Msg("failed to mount filesystem")
		os.Exit(1)
	}

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	logger.Info().Str("mountpoint", mountPoint).Str("url", url).Msg("filesystem mounted successfully")

	sig := <-signalChan
	logger.Info().Str("signal", sig.String()).Msg("received signal, unmounting filesystem")

	if err := fs.Unmount(); err != nil {
		logger.Error().Err(err).Msg("failed to unmount filesystem")
	} else {
		logger.Info().Msg("filesystem unmounted successfully")
	}
}
