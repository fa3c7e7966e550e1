package main

import (
	"fmt"

	mcobra "github.com/muesli/mango-cobra"
	"github.com/muesli/roff"
	"github.com/spf13/cobra"
)

var manCmd = &cobra.Command{
	Use:                   "man",
	Short:                 "Generates manpages",
	SilenceUsage:          true,
	DisableFlagsInUseLine: true,
	Hidden:                true,
	Args:                  cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		page, err := mcobra.NewManPage(1, rootCmd)
		if err != nil {
			return err //nolint:wrapcheck
		}

		page = page.WithSection("Keys", "F8 plays and stops, F7 and F9 move to the previous and next document.\n"+
			"Enter reads from the top line on screen, + and - change the rate, [ and ] the pitch.")
		fmt.Println(page.Build(roff.NewDocument()))
		return nil
	},
}
