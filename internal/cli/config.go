package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Paintersrp/scriptq/internal/cliutil"
	"github.com/Paintersrp/scriptq/internal/config"
)

func newConfigCmd(ctx *context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Work with scriptq configuration files",
		// Subcommands load configuration themselves so lint can report
		// errors in its own format.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
	}
	cmd.AddCommand(newConfigLintCmd(ctx))
	cmd.AddCommand(newConfigShowCmd(ctx))
	return cmd
}

func newConfigLintCmd(ctx *context) *cobra.Command {
	return &cobra.Command{
		Use:   "lint",
		Short: "Validate a configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ctx.configFile
			if path == "" {
				return errors.New("no configuration file given; pass --config")
			}
			if _, err := config.Load(path); err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), err)
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: OK\n", path)
			return nil
		},
	}
}

func newConfigShowCmd(ctx *context) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration after overrides",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.setup(cmd); err != nil {
				return err
			}
			effective := *ctx.cfg
			effective.Child.Env = cliutil.RedactEnv(effective.Child.Env)

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(&effective); err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			return enc.Close()
		},
	}
}
