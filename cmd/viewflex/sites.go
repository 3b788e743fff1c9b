package main

import (
	"encoding/json"
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

func newSitesCmd(g *globalFlags) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "sites",
		Short: "List supported sites and their widths",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			bridge, done, err := openBridge(g)
			if err != nil {
				return err
			}
			defer done()

			entries, err := bridge.List(cmd.Context())
			if err != nil {
				return err
			}
			if output == "json" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			}

			table := pterm.TableData{{"Site", "Name", "Width", "Stored"}}
			for _, e := range entries {
				stored := "no"
				if e.Stored {
					stored = "yes"
				}
				table = append(table, []string{string(e.Site), e.DisplayName, strconv.Itoa(e.Width) + "rem", stored})
			}
			return pterm.DefaultTable.WithHasHeader().WithWriter(cmd.OutOrStdout()).WithData(table).Render()
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output format (json)")
	return cmd
}
