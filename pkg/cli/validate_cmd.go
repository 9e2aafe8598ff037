package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"duckflow/internal/declarative"
	"duckflow/internal/service/pipeline"
	"duckflow/internal/sqltemplate"
)

// errInvalidConfig is returned after validation errors have been printed.
var errInvalidConfig = errors.New("pipeline configuration is invalid")

func newValidateCmd() *cobra.Command {
	var allowUnknownFields bool

	cmd := &cobra.Command{
		Use:   "validate [path]",
		Short: "Validate pipeline definitions offline",
		Long: "Reads a pipeline YAML file or directory, checks it for errors and prints the task levels " +
			"each pipeline would run in. Defaults to $PIPELINES_DIR or ./pipelines.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := os.Getenv("PIPELINES_DIR")
			if path == "" {
				path = "pipelines"
			}
			if len(args) == 1 {
				path = args[0]
			}

			state, err := declarative.Load(path, declarative.LoadOptions{AllowUnknownFields: allowUnknownFields})
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			errs := declarative.Validate(state)
			var defs []pipeline.Definition
			if len(errs) == 0 {
				defs, err = declarative.Compile(state, declarative.CompileOptions{Templates: sqltemplate.Sparkify()})
				if err != nil {
					errs = append(errs, declarative.ValidationError{Path: path, Message: err.Error()})
				}
			}

			out := cmd.OutOrStdout()
			if getOutputFormat(cmd) == "json" {
				if err := declarative.FormatJSON(out, defs, errs); err != nil {
					return err
				}
			} else {
				declarative.FormatText(out, defs, errs, colorDisabled(cmd, out))
			}
			if len(errs) > 0 {
				return errInvalidConfig
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&allowUnknownFields, "allow-unknown-fields", false, "Allow unknown YAML fields")
	cmd.Flags().Bool("no-color", false, "Disable colored output")

	return cmd
}
