package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"strata/internal/domain"
	"strata/internal/loader"
	"strata/internal/schema"
)

var schemaPublished bool

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Inspect and update the schema",
}

var schemaApplyCmd = &cobra.Command{
	Use:   "apply <file>",
	Short: "Apply the schema section of a JSON or YAML bundle",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app, session domain.Session) error {
			payload, err := loader.New(a.engine, a.logger).ApplySchemaFile(ctx, session, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Schema %s (version %d)\n", payload.Effect, payload.Schema.Version)
			if _, err := a.engine.DrainDirtyEntities(ctx); err != nil {
				return fmt.Errorf("failed to reconcile entities: %w", err)
			}
			return nil
		})
	},
}

var schemaShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current schema as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app, session domain.Session) error {
			var (
				spec schema.Specification
				err  error
			)
			if schemaPublished {
				spec, err = a.engine.GetPublishedSchemaSpecification(ctx)
			} else {
				spec, err = a.engine.GetSchemaSpecification(ctx)
			}
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(os.Stdout)
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(spec)
		})
	},
}

func init() {
	schemaShowCmd.Flags().BoolVar(&schemaPublished, "published", false, "Show the published schema")
	schemaCmd.AddCommand(schemaApplyCmd, schemaShowCmd)
}
