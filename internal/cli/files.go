package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/omerasipi/Es-Selam-Banko/internal/analysis"
	"github.com/omerasipi/Es-Selam-Banko/pkg/message"
)

// errInvalidFiles makes validate exit non-zero
var errInvalidFiles = errors.New("some files are invalid")

// fileLogLevel keeps the output of file commands free of startup logs
const fileLogLevel = "warn"

// withApp runs fn against an app built from the root options
func withApp(cmd *cobra.Command, opts *rootOptions, fn func(ctx context.Context, a *app) error) error {
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	level := opts.logLevel
	if level == "" {
		level = fileLogLevel
	}
	logger, err := newLogger(cfg, level, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(ctx, cfg, logger, false)
	if err != nil {
		return err
	}
	defer a.Close(ctx)
	return fn(ctx, a)
}

// readFile reads a named file, or standard input for "-"
func readFile(cmd *cobra.Command, name string) (analysis.File, error) {
	var (
		data []byte
		err  error
	)
	if name == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
		name = "stdin"
	} else {
		data, err = os.ReadFile(name)
		name = filepath.Base(name)
	}
	if err != nil {
		return analysis.File{}, err
	}
	return analysis.File{Name: name, Data: data}, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newAnalyzeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze FILE...",
		Short: "Analyze the donations in statement and notification files",
		Long: "Analyze the donations in camt.053 and camt.054 files. Files are analyzed\n" +
			"together and the analysis is written as JSON. Use - to read standard input.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				files := make([]analysis.File, 0, len(args))
				for _, name := range args {
					f, err := readFile(cmd, name)
					if err != nil {
						return err
					}
					files = append(files, f)
				}

				res, err := a.service.AnalyzeFiles(ctx, analysis.SourceCLI, files)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), res)
			})
		},
	}
}

func newValidateCommand(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "validate FILE...",
		Short: "Validate ISO 20022 messages",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(_ context.Context, a *app) error {
				out := cmd.OutOrStdout()
				invalid := false
				results := make([]map[string]any, 0, len(args))

				for _, name := range args {
					f, err := readFile(cmd, name)
					if err != nil {
						return err
					}
					report, err := a.service.ValidateMessage(f)
					if err != nil {
						invalid = true
						results = append(results, map[string]any{"file": f.Name, "error": err.Error()})
						if !asJSON {
							fmt.Fprintf(out, "%s: %v\n", f.Name, err)
						}
						continue
					}
					if !report.Valid {
						invalid = true
					}
					results = append(results, map[string]any{"file": f.Name, "report": report})
					if asJSON {
						continue
					}

					status := "valid"
					if !report.Valid {
						status = "invalid"
					}
					fmt.Fprintf(out, "%s: %s %s\n", f.Name, report.Schema, status)
					for _, issue := range report.Issues {
						fmt.Fprintf(out, "  %s\n", issue)
					}
				}

				if asJSON {
					if err := writeJSON(out, results); err != nil {
						return err
					}
				}
				if invalid {
					return errInvalidFiles
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Write the reports as JSON")
	return cmd
}

func newNormalizeCommand(opts *rootOptions) *cobra.Command {
	var (
		output  string
		compact bool
		indent  int
	)
	cmd := &cobra.Command{
		Use:   "normalize FILE",
		Short: "Write the canonical form of a message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if indent < 0 || indent > 8 {
				return fmt.Errorf("--indent must be between 0 and 8, got %d", indent)
			}
			return withApp(cmd, opts, func(_ context.Context, a *app) error {
				f, err := readFile(cmd, args[0])
				if err != nil {
					return err
				}

				serializeOpts := []message.SerializeOption{message.WithIndent(indent)}
				if compact {
					serializeOpts = []message.SerializeOption{message.Compact()}
				}
				out, err := a.service.Normalize(f, serializeOpts...)
				if err != nil {
					return err
				}

				if output == "" || output == "-" {
					_, err = cmd.OutOrStdout().Write(out)
					return err
				}
				return os.WriteFile(output, out, 0o644)
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default standard output)")
	cmd.Flags().BoolVar(&compact, "compact", false, "Write without indentation")
	cmd.Flags().IntVar(&indent, "indent", 2, "Spaces per indentation level")
	return cmd
}

func newFormatsCommand(opts *rootOptions) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "formats",
		Short: "List the supported CAMT format versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(_ context.Context, a *app) error {
				out := cmd.OutOrStdout()
				if !all {
					for _, v := range a.service.SupportedFormats() {
						fmt.Fprintln(out, v)
					}
					return nil
				}

				reg, err := newRegistry(a.cfg, a.logger)
				if err != nil {
					return err
				}
				for _, id := range reg.IDs() {
					fmt.Fprintln(out, id)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "List every registered message definition")
	return cmd
}
