//go:build ignore

// Command cmdtree prints the binderlaunch command tree as markdown, with the
// local flags of every command. Run with: go run scripts/cmdtree/cmdtree.go
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/inovacc/binderlaunch/cmd"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const (
	branch = "+-- "
	last   = "\\-- "
	pipe   = "|   "
	blank  = "    "
)

var (
	outputFile string
	withFlags  bool
	commentCol int
)

func init() {
	flag.StringVar(&outputFile, "o", "", "Output file (default: stdout)")
	flag.BoolVar(&withFlags, "flags", false, "List the local flags of each command")
	flag.IntVar(&commentCol, "comment-col", 40, "Column position for descriptions")
}

func main() {
	flag.Parse()

	var w io.Writer = os.Stdout

	if outputFile != "" {
		f, err := os.Create(outputFile)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Error creating file: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = f.Close() }()

		w = f
	}

	root := cmd.GetRootCmd()

	_, _ = fmt.Fprintf(w, "# %s commands\n\n```\n%s\n", root.Name(), root.Use)
	walk(w, root, "")
	_, _ = fmt.Fprintln(w, "```")
}

func walk(w io.Writer, parent *cobra.Command, prefix string) {
	var children []*cobra.Command

	for _, c := range parent.Commands() {
		if c.Hidden || c.Name() == "help" {
			continue
		}

		children = append(children, c)
	}

	for i, c := range children {
		connector, indent := branch, pipe
		if i == len(children)-1 {
			connector, indent = last, blank
		}

		line := prefix + connector + c.Use
		_, _ = fmt.Fprintf(w, "%s%s# %s\n", line, strings.Repeat(" ", max(commentCol-len(line), 2)), c.Short)

		if withFlags {
			c.LocalNonPersistentFlags().VisitAll(func(f *pflag.Flag) {
				_, _ = fmt.Fprintf(w, "%s%s--%s\n", prefix+indent, blank, f.Name)
			})
		}

		walk(w, c, prefix+indent)
	}
}
