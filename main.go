// ssabe - SSA middle-end and x86-64 back-end driver.
package main

import (
	"io"
	"log/slog"
	"os"

	getopt "github.com/pborman/getopt/v2"

	"github.com/nc-labs/ssabe/archx64"
	"github.com/nc-labs/ssabe/backend"
	"github.com/nc-labs/ssabe/config"
	"github.com/nc-labs/ssabe/diag"
	"github.com/nc-labs/ssabe/ir"
	"github.com/nc-labs/ssabe/irfront"
	"github.com/nc-labs/ssabe/repl"
	"github.com/nc-labs/ssabe/vectorize"
)

func main() {
	optInput := getopt.StringLong("input", 'i', "", "IR input file")
	optOutput := getopt.StringLong("output", 'o', "out.s", "Assembly output file")
	optConfig := getopt.StringLong("config", 'c', "", "Configuration file")
	optLogFile := getopt.StringLong("log", 'l', "", "Log file")
	optInspect := getopt.BoolLong("inspect", 'I', "Open the inspector after compiling")
	optHelp := getopt.BoolLong("help", 'h', "Help")
	getopt.Parse()

	if *optHelp {
		getopt.Usage()
		os.Exit(0)
	}

	cfg := config.Default()
	if *optConfig != "" {
		var err error
		cfg, err = config.LoadFile(*optConfig)
		if err != nil {
			slog.Error(err.Error())
			os.Exit(1)
		}
	}

	var logWriter io.Writer
	if *optLogFile != "" {
		logFile, err := os.Create(*optLogFile)
		if err != nil {
			slog.Error(err.Error())
			os.Exit(1)
		}
		logWriter = logFile
	}
	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(diag.NewHandler(logWriter, level, cfg.Debug))
	slog.SetDefault(logger)
	diag.SetDefault(logger)

	if *optInput == "" {
		logger.Error("Please specify an input file")
		os.Exit(1)
	}
	in, err := os.Open(*optInput)
	if err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}
	fns, err := irfront.Parse(in)
	in.Close()
	if err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}
	if len(fns) == 0 {
		logger.Error("input contains no functions")
		os.Exit(1)
	}

	arch := archx64.New()
	arch.NumGP = cfg.GPRegs
	arch.NumXMM = cfg.XMMRegs

	out, err := os.Create(*optOutput)
	if err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}
	err = backend.Compile(fns, backend.Options{
		Arch:        arch,
		Entry:       cfg.Entry,
		Concurrency: cfg.Concurrency,
		Log:         logger,
		VecReport: func(t ir.Type, ctx vectorize.Context) {
			logger.Warn("cannot vectorize", "type", t.String(), "function", ctx.Function)
		},
	}, out)
	if err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}
	if err := out.Close(); err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}
	logger.Info("wrote " + *optOutput)

	if *optInspect {
		repl.Run(fns)
	}
}
