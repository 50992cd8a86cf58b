package cli

import (
	"github.com/spf13/cobra"

	"github.com/mrz1836/warden/internal/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			info := version.Get()
			if formatter.IsJSON() {
				return formatter.Print(info)
			}
			return formatter.Println("warden " + info.String())
		},
	}
}
