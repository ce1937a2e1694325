// shapec compiles RSM and glTF models into packed shapes.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/Faultbox/midgard-shape/internal/config"
	"github.com/Faultbox/midgard-shape/internal/logger"
)

func main() {
	flag.Usage = printUsage
	config.ParseFlags()

	if flag.NArg() < 1 {
		printUsage()
		os.Exit(1)
	}
	command := flag.Arg(0)
	args := flag.Args()[1:]

	if command == "help" || command == "-h" {
		printUsage()
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "Logger error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	logger.Sugar.Debugf("Config: %+v", cfg)

	switch command {
	case "compile", "c":
		err = cmdCompile(cfg, args)
	case "dump":
		err = cmdDump(cfg, args)
	case "batch", "b":
		err = cmdBatch(cfg, args)
	case "info":
		err = cmdInfo(cfg, args)
	case "list", "ls":
		err = cmdList(cfg, args)
	case "init-config":
		err = cmdInitConfig(cfg, args)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		logger.Sync()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `shapec - shape compiler for RSM and glTF models

Usage:
  shapec [global options] <command> [options]

Commands:
  compile <model> [-o out.yaml]     Compile one model and print its summary
  dump <model> [-seq name]          Compile one model and dump the shape
  batch [source...] [-match text]   Compile every model found in the sources
  info [source...]                  Show models available in the sources
  list [source...] [-match text]    List models available in the sources
  init-config [path]                Write the effective config as YAML

Sources are directories or GRF archives; data.grf_paths from the config
are always searched, later entries first. Models named on the command line
are read from disk when the file exists, else from the sources.

Global options:`)
	flag.PrintDefaults()
	fmt.Fprintln(os.Stderr, `
Examples:
  shapec compile data/model/windmill.rsm
  shapec -grf data.grf compile data/model/프론테라/분수.rsm
  shapec -workers 8 -out shapes batch data.grf -match model/
  shapec dump -seq ambient robot.gltf`)
}
