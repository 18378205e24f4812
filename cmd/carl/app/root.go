package app

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"

	"github.com/opendut/carl/pkg/log"
)

var opts struct {
	Verbose bool
}

// NewCommand builds carl's root cobra command, wiring run/version the same
// way the teacher's cmd/e2d/app.NewCommand composes its own subcommands.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "carl",
		Short: "openDUT control and reporting layer",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.Verbose {
				log.SetLevel(zapcore.DebugLevel)
			}
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose log output (debug)")
	cmd.AddCommand(
		newRunCmd(),
		newVersionCmd(),
	)
	return cmd
}
