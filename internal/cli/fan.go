package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Paintersrp/scriptq/internal/cliutil"
	"github.com/Paintersrp/scriptq/internal/sigq"
)

func newFanCmd(ctx *context) *cobra.Command {
	var (
		count  int
		direct bool
	)
	cmd := &cobra.Command{
		Use:   "fan [-n COUNT] -- COMMAND [ARG...]",
		Short: "Fork several supervised copies of a command and wait for all of them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			if count < 1 {
				return fmt.Errorf("--count must be at least 1, got %d", count)
			}
			stop, err := ctx.startDiagnostics(cmd)
			if err != nil {
				return err
			}
			defer func() {
				if stopErr := stop(); stopErr != nil && err == nil {
					err = stopErr
				}
			}()

			sup := ctx.supervisor
			opts := []sigq.ElementOption{
				sigq.WithEnv(ctx.cfg.Child.Environ()),
				sigq.WithDir(ctx.cfg.Child.Workdir),
				sigq.WithStdio(nil, fileOrNil(cmd.OutOrStdout()), fileOrNil(cmd.ErrOrStderr())),
			}
			if direct {
				opts = append(opts, sigq.WithDirectWait())
			}

			elems := make([]*sigq.Element, 0, count)
			for i := 0; i < count; i++ {
				e := sigq.NewElement(args, opts...)
				if _, err := sup.ForkTracked(e); err != nil {
					// Children already forked are parked on their handshake.
					for _, forked := range elems {
						_, _ = sup.Wait(forked)
					}
					return err
				}
				elems = append(elems, e)
			}

			var g errgroup.Group
			for _, e := range elems {
				g.Go(func() error {
					_, err := sup.Wait(e)
					return err
				})
			}
			waitErr := g.Wait()

			out := cmd.OutOrStdout()
			worst := 0
			for i, e := range elems {
				res := e.Last()
				code := res.ExitCode()
				fmt.Fprintf(out, "%d\tpid=%d\tstatus=%d\telapsed=%s\n", i, res.Pid, code, res.Elapsed)
				if code != 0 && worst == 0 {
					worst = code
				}
			}
			ctx.log.Debug().Strs("argv", cliutil.RedactArgs(args)).Int("count", count).Bool("direct", direct).Int("status", worst).Msg("fan finished")
			if waitErr != nil {
				return waitErr
			}
			if worst != 0 {
				return &exitError{code: worst}
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 2, "Number of copies to fork")
	cmd.Flags().BoolVar(&direct, "direct", false, "Collect children with a blocking wait instead of the reaper")
	cmd.Flags().SetInterspersed(false)
	return cmd
}
