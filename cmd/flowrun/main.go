// Command flowrun compiles pipeline sources against a module manifest:
// `flowrun check` reports diagnostics, `flowrun hash` prints a compiled
// pipeline's structural hash. Execution is an embedding concern (modules
// are Go code registered in-process); the CLI covers the authoring loop.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	flowrun "github.com/flowrun/flowrun"
)

var (
	// Version info, set by ldflags during build.
	Version = "dev"
	Commit  = "unknown"

	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

func main() {
	var (
		versionFlag  = flag.Bool("version", false, "Print version information")
		manifestPath = flag.String("modules", "", "Path to a YAML module manifest")
		verbose      = flag.Bool("verbose", false, "Enable debug logging")
	)
	flag.Parse()

	zerolog.SetGlobalLevel(zerolog.WarnLevel)
	if *verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if *versionFlag {
		fmt.Printf("flowrun %s (%s)\n", Version, Commit)
		return
	}
	if flag.NArg() < 2 {
		printUsage()
		os.Exit(2)
	}

	cmd, file := flag.Arg(0), flag.Arg(1)
	rt := flowrun.New()
	if *manifestPath != "" {
		if err := registerManifest(rt, *manifestPath); err != nil {
			fmt.Fprintf(os.Stderr, "%s %v\n", red("error:"), err)
			os.Exit(1)
		}
	}

	src, err := os.ReadFile(file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", red("error:"), err)
		os.Exit(1)
	}

	switch cmd {
	case "check":
		os.Exit(runCheck(rt, string(src), file))
	case "hash":
		result, err := rt.Compile(string(src), file)
		if err != nil {
			renderErrors(string(src), err)
			os.Exit(1)
		}
		fmt.Println(result.Hash)
	default:
		printUsage()
		os.Exit(2)
	}
}

func runCheck(rt *flowrun.Runtime, src, file string) int {
	result, err := rt.Compile(src, file)
	if err != nil {
		renderErrors(src, err)
		return 1
	}
	for _, w := range result.Warnings {
		renderReport(src, w, yellow("warning"))
	}
	fmt.Printf("%s %s (%s, %d warnings)\n", green("ok"), bold(file), cyan(result.Hash[:12]), len(result.Warnings))
	return 0
}

func printUsage() {
	fmt.Println(bold("flowrun") + " — pipeline DSL compiler")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  flowrun [flags] check <file>   Type-check and compile a pipeline")
	fmt.Println("  flowrun [flags] hash <file>    Print a pipeline's structural hash")
	fmt.Println()
	fmt.Println("Flags:")
	flag.PrintDefaults()
}
