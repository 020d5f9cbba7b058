// Package devices implements the devices command.
package devices

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tphakala/shmaudio/internal/app"
	"github.com/tphakala/shmaudio/internal/audiocore/backend"
)

// Command creates the devices command.
func Command(ctx *app.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List capture and playback devices of the configured backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := ctx.Backend()
			if err != nil {
				return err
			}
			infos, err := backend.ListDevices(cmd.Context(), b)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "INDEX\tDIRECTION\tDEFAULT\tNAME\tID")
			for _, d := range infos {
				def := ""
				if d.Default {
					def = "*"
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", d.Index, d.Direction, def, d.Name, d.ID)
			}
			return w.Flush()
		},
	}
}
