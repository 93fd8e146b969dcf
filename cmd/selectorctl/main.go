// Package main is a command line client for the selector engine. It works on
// local HTML files without a server.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/net/html"

	"github.com/lemonberrylabs/selector-engine/pkg/config"
	"github.com/lemonberrylabs/selector-engine/pkg/dom"
	"github.com/lemonberrylabs/selector-engine/pkg/runtime"
)

var (
	configPath string
	debug      bool

	logger *zap.Logger
	engine *runtime.Engine
)

var rootCmd = &cobra.Command{
	Use:           "selectorctl",
	Short:         "Query, parse and generate selectors for HTML files",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		zc := zap.NewProductionConfig()
		zc.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
		if debug {
			zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		if logger, err = zc.Build(); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		engine, err = runtime.NewEngine(cfg, logger)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var tokenizeCmd = &cobra.Command{
	Use:   "tokenize <css>",
	Short: "Print the CSS tokens of the input",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tokens, err := engine.Tokenize(args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), runtime.ViewTokens(tokens))
	},
}

var parseCmd = &cobra.Command{
	Use:   "parse <selector>",
	Short: "Print the parsed form of a selector",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		parsed, err := engine.ParseSelector(args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), runtime.ViewParsed(parsed))
	},
}

var queryCmd = &cobra.Command{
	Use:   "query <file> <selector>",
	Short: "Print the elements of an HTML file matching a selector",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := readDocument(args[0])
		if err != nil {
			return err
		}
		light, _ := cmd.Flags().GetBool("light")
		nodes, err := engine.QuerySelectorAll(doc, args[1], runtime.QueryOptions{Light: light})
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), runtime.DescribeAll(doc, nodes))
	},
}

var generateCmd = &cobra.Command{
	Use:   "generate <file>",
	Short: "Generate a unique selector for an element of an HTML file",
	Long: `Generate a unique selector for the element given by --handle (its index in
document order, shadow trees included) or for the first match of --selector.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := readDocument(args[0])
		if err != nil {
			return err
		}
		target, err := resolveTarget(cmd, doc)
		if err != nil {
			return err
		}
		res, err := engine.GenerateSelector(doc, target)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"selector": res.Selector,
			"elements": runtime.DescribeAll(doc, res.Elements),
		})
	},
}

var findTextCmd = &cobra.Command{
	Use:   "find-text <file> <text>",
	Short: "Print the smallest element containing text",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := readDocument(args[0])
		if err != nil {
			return err
		}
		ignoreCase, _ := cmd.Flags().GetBool("ignore-case")
		el := engine.FindText(doc, nil, args[1], ignoreCase)
		if el == nil {
			return fmt.Errorf("text %q not found", args[1])
		}
		return printJSON(cmd.OutOrStdout(), runtime.Describe(doc, el))
	},
}

var enginesCmd = &cobra.Command{
	Use:   "engines",
	Short: "List the selector engines",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, name := range engine.EngineNames() {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML configuration file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	queryCmd.Flags().Bool("light", false, "Do not pierce shadow roots")
	generateCmd.Flags().Int("handle", -1, "Element handle")
	generateCmd.Flags().String("selector", "", "Selector whose first match is the target")
	findTextCmd.Flags().BoolP("ignore-case", "i", false, "Match case-insensitively")

	rootCmd.AddCommand(tokenizeCmd, parseCmd, queryCmd, generateCmd, findTextCmd, enginesCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// readDocument parses an HTML file, or stdin for "-".
func readDocument(path string) (*dom.Document, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	return dom.Parse(r)
}

func resolveTarget(cmd *cobra.Command, doc *dom.Document) (*html.Node, error) {
	handle, _ := cmd.Flags().GetInt("handle")
	sel, _ := cmd.Flags().GetString("selector")
	switch {
	case handle >= 0:
		el := doc.ElementAt(handle)
		if el == nil {
			return nil, fmt.Errorf("element handle %d out of range [0, %d)", handle, len(doc.AllElements()))
		}
		return el, nil
	case sel != "":
		el, err := engine.QuerySelector(doc, sel, runtime.QueryOptions{})
		if err != nil {
			return nil, err
		}
		if el == nil {
			return nil, fmt.Errorf("no element matches %q", sel)
		}
		return el, nil
	default:
		return nil, fmt.Errorf("one of --handle or --selector is required")
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
