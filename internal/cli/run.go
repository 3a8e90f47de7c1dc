package cli

import (
	stdcontext "context"
	"errors"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/Paintersrp/scriptq/internal/cliutil"
	"github.com/Paintersrp/scriptq/internal/sigq"
)

func newRunCmd(ctx *context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run -- COMMAND [ARG...]",
		Short: "Execute a command, wait for it and exit with its status",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			stop, err := ctx.startDiagnostics(cmd)
			if err != nil {
				return err
			}
			defer func() {
				if stopErr := stop(); stopErr != nil && err == nil {
					err = stopErr
				}
			}()

			var status int
			runErr := sigq.SpawnAndJoin(func(argv []string) error {
				var err error
				status, err = ctx.supervisor.Run(cmd.Context(), argv)
				return err
			}, args)
			if errors.Is(runErr, stdcontext.Canceled) {
				// The child was killed and reaped; report it like a shell would.
				return &exitError{code: 128 + int(unix.SIGINT)}
			}
			if runErr != nil {
				return runErr
			}
			ctx.log.Debug().Strs("argv", cliutil.RedactArgs(args)).Int("status", status).Msg("run finished")
			if status != 0 {
				return &exitError{code: status}
			}
			return nil
		},
	}
	cmd.Flags().SetInterspersed(false)
	return cmd
}
