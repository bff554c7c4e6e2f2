package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
)

// Version is set at build time via -ldflags
var Version = "dev"

// AppOptions holds the parsed command line.
type AppOptions struct {
	ConfigFile  string
	InputFile   string
	OutputFile  string
	RenderFile  string
	Frame       string
	Tool        string
	Subject     string
	Publish     bool
	ListShapes  bool
	WriteConfig string
}

// Runner is the part of App driven by the command line.
type Runner interface {
	ApplyOptions(opts AppOptions)
	RunReduce() error
	RunListShapes()
}

func main() {
	if err := run(os.Args[1:], os.Stdout, NewApp()); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		log.Fatal(err)
	}
}

func run(args []string, out io.Writer, app Runner) error {
	fs := flag.NewFlagSet("markconsensus", flag.ContinueOnError)
	fs.SetOutput(out)

	var opts AppOptions
	fs.StringVar(&opts.ConfigFile, "config", "", "Path to reducer configuration (YAML); overrides any config embedded in the input")
	fs.StringVar(&opts.InputFile, "input", "", "Path to grouped extracts (JSON)")
	fs.StringVar(&opts.OutputFile, "output", "-", "Output file for the consensus record, - for stdout")
	fs.StringVar(&opts.RenderFile, "render", "", "Render one tool result to this .svg or .png file")
	fs.StringVar(&opts.Frame, "frame", "", "Frame to render (default: first frame)")
	fs.StringVar(&opts.Tool, "tool", "", "Tool to render (default: first tool of the frame)")
	fs.BoolVar(&opts.Publish, "publish", false, "Publish each frame of the record to MQTT")
	fs.StringVar(&opts.Subject, "subject", "", "Subject id used in published topics")
	fs.BoolVar(&opts.ListShapes, "shapes", false, "List supported shapes and exit")
	fs.StringVar(&opts.WriteConfig, "write-config", "", "Write the effective configuration, defaults included, to this YAML file")

	if err := fs.Parse(args); err != nil {
		return err
	}
	app.ApplyOptions(opts)
	if opts.ListShapes {
		fmt.Fprintf(out, "markconsensus version: %s\n", Version)
		app.RunListShapes()
		return nil
	}
	if opts.InputFile == "" {
		fmt.Fprintf(out, "markconsensus version: %s\n", Version)
		fmt.Fprintln(out, "Use -input to reduce a file of grouped extracts")
		fmt.Fprintln(out, "Use -config to supply the reducer configuration")
		fmt.Fprintln(out, "Use -render out.svg to draw a tool result")
		fmt.Fprintln(out, "Use -publish -subject ID to post the record to MQTT")
		fmt.Fprintln(out, "Use -write-config FILE to save the effective configuration")
		fmt.Fprintln(out, "Use -shapes to list supported shapes")
		return nil
	}
	if opts.Publish && opts.Subject == "" {
		return fmt.Errorf("-publish requires -subject")
	}
	// stdout may carry the record, so the banner goes to the log
	log.Printf("markconsensus version: %s", Version)
	return app.RunReduce()
}
