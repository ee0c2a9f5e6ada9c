package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var payersCmd = &cobra.Command{
	Use:   "payers",
	Short: "List or add payers",
}

var payersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List payers",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		repo := openRepo()
		defer repo.Close()

		payers, err := repo.ListPayers(context.Background())
		exitOnError(err, "failed to list payers")

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME")
		for _, p := range payers {
			fmt.Fprintf(tw, "%d\t%s\n", p.ID, p.Name)
		}
		_ = tw.Flush()
	},
}

var payersAddCmd = &cobra.Command{
	Use:   "add NAME",
	Short: "Add a payer",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		repo := openRepo()
		defer repo.Close()

		p, err := repo.CreatePayer(context.Background(), args[0])
		exitOnError(err, "failed to add payer")
		fmt.Fprintf(cmd.OutOrStdout(), "Added payer %d %q\n", p.ID, p.Name)
	},
}

func init() {
	payersCmd.AddCommand(payersListCmd, payersAddCmd)
}
