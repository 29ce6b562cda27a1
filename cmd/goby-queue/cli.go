package main

import "flag"

// Options holds CLI options for the queue node.
type Options struct {
	ConfigPath string
	Demo       bool
	DemoDest   int
}

// ParseFlags parses CLI flags from args and returns Options.
func ParseFlags(args []string) Options {
	fs := flag.NewFlagSet("goby-queue", flag.ExitOnError)
	var opts Options
	fs.StringVar(&opts.ConfigPath, "config", "", "Path to YAML config file")
	fs.BoolVar(&opts.Demo, "demo", false, "Push synthetic status reports onto the first queue")
	fs.IntVar(&opts.DemoDest, "demo-dest", 0, "Destination modem id for demo reports (0 = broadcast)")
	_ = fs.Parse(args)
	return opts
}
