package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/kuzufcm/storage-bench/engine"
	"github.com/kuzufcm/storage-bench/logger"
	"github.com/kuzufcm/storage-bench/server/conf"
	"github.com/kuzufcm/storage-bench/storage/alloc"
	"github.com/kuzufcm/storage-bench/storage/checkpoint"
	"github.com/kuzufcm/storage-bench/workload"
)

const help = `
******************************************************************************
 storage-bench: free chunk map checkpoint stress driver
******************************************************************************
Usage:
  fcmbench -N <iterations> -D <csv-dir> -B <db-home> -S <strategy> [-V <value>]

  -N <int>      number of iterations (required)
  -D <path>     directory containing people-100000.csv, customers-100000.csv,
                organizations-100000.csv (required)
  -B <path>     database home directory, created if it does not exist (required)
  -S <string>   selection strategy: auto | seed | fixed | round
                (defaults to the [driver] strategy in conf/bench.ini, or
                "auto" if unset)
  -V <int>      value for strategy (required except for auto; defaults to
                the [driver] seed in conf/bench.ini)
  -h            print this help and exit
******************************************************************************
`

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("fcmbench", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var (
		iterations   int
		csvDir       string
		homeDir      string
		strategyName string
		value        int
		showHelp     bool
	)
	fs.IntVar(&iterations, "N", 0, "number of iterations")
	fs.StringVar(&csvDir, "D", "", "csv source directory")
	fs.StringVar(&homeDir, "B", "", "database home directory")
	fs.StringVar(&strategyName, "S", "", "selection strategy")
	fs.IntVar(&value, "V", 0, "value for strategy")
	fs.BoolVar(&showHelp, "h", false, "print help")

	if err := fs.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, help)
		return 1
	}
	if showHelp {
		fmt.Print(help)
		return 0
	}

	strategyGiven, hasValue := false, false
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "V":
			hasValue = true
		case "S":
			strategyGiven = true
		}
	})

	if iterations <= 0 || csvDir == "" || homeDir == "" {
		fmt.Fprintln(os.Stderr, "fcmbench: -N, -D, and -B are all required")
		fmt.Fprint(os.Stderr, help)
		return 1
	}

	cfg := conf.NewCfg().Load(&conf.CommandLineArgs{})

	// -S/-V on the command line always win; otherwise fall back to the
	// config file's [driver] strategy/seed rather than hard-coding one.
	if !strategyGiven {
		strategyName = cfg.DriverStrategy
	}
	if !hasValue {
		value = int(cfg.DriverSeed)
		hasValue = true
	}

	logCfg := logger.LogConfig{LogLevel: cfg.LogLevel}
	if cfg.LogPath != "" {
		logCfg.InfoLogPath = cfg.LogPath
		logCfg.ErrorLogPath = cfg.LogPath
	}
	if err := logger.InitLogger(logCfg); err != nil {
		fmt.Fprintf(os.Stderr, "fcmbench: failed to initialize logger: %v\n", err)
	}

	// enable_free_chunk_map only records which binary the config file was
	// written for; the allocator's actual free-list behavior is fixed at
	// build time by the fcm_disabled tag and cannot be toggled here.
	if cfg.EnableFreeChunkMap != alloc.EnableFreeChunkMap {
		logger.Warnf("conf: enable_free_chunk_map=%v in config but this binary was built with EnableFreeChunkMap=%v (set via -tags fcm_disabled); the config value has no effect", cfg.EnableFreeChunkMap, alloc.EnableFreeChunkMap)
	}

	if err := os.MkdirAll(homeDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "fcmbench: cannot create database home %s: %v\n", homeDir, err)
		return 1
	}

	coordinator, err := openOrCreate(homeDir, uint32(cfg.PageSize))
	if err != nil {
		fmt.Fprintf(os.Stderr, "fcmbench: %v\n", err)
		return 1
	}
	defer coordinator.Close()

	eng, err := engine.New(coordinator)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fcmbench: %v\n", err)
		return 1
	}

	driver, err := workload.NewDriver(eng, csvDir, homeDir, strategyName, value, hasValue)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fcmbench: %v\n", err)
		fmt.Fprint(os.Stderr, help)
		return 1
	}

	if err := driver.Run(iterations); err != nil {
		fmt.Fprintf(os.Stderr, "fcmbench: %v\n", err)
		return 1
	}

	outPath := fmt.Sprintf("%s_result.csv", driver.StrategyLabel())
	if err := driver.WriteCSV(outPath); err != nil {
		fmt.Fprintf(os.Stderr, "fcmbench: failed writing result csv: %v\n", err)
		return 1
	}
	driver.PrintRollup()
	return 0
}

func openOrCreate(homeDir string, pageSize uint32) (*checkpoint.Coordinator, error) {
	if _, err := os.Stat(homeDir + "/data.kzfc"); err == nil {
		return checkpoint.Open(homeDir)
	}
	return checkpoint.Create(homeDir, pageSize)
}
