package cmd

import (
	"context"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var tagsCmd = &cobra.Command{
	Use:   "tags",
	Short: "List, add or delete tags",
}

var tagsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tags",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		repo := openRepo()
		defer repo.Close()

		tags, err := repo.ListTags(context.Background())
		exitOnError(err, "failed to list tags")

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME")
		for _, t := range tags {
			fmt.Fprintf(tw, "%d\t%s\n", t.ID, t.Name)
		}
		_ = tw.Flush()
	},
}

var tagsAddCmd = &cobra.Command{
	Use:   "add NAME",
	Short: "Add a tag",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		repo := openRepo()
		defer repo.Close()

		t, err := repo.CreateTag(context.Background(), args[0])
		exitOnError(err, "failed to add tag")
		fmt.Fprintf(cmd.OutOrStdout(), "Added tag %d %q\n", t.ID, t.Name)
	},
}

var tagsDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a tag; links to quotes, expenses and incomes go with it",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id, err := strconv.ParseInt(args[0], 10, 64)
		exitOnError(err, "invalid tag id")

		repo := openRepo()
		defer repo.Close()

		exitOnError(repo.DeleteTag(context.Background(), id), "failed to delete tag")
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted tag %d\n", id)
	},
}

func init() {
	tagsCmd.AddCommand(tagsListCmd, tagsAddCmd, tagsDeleteCmd)
}
