package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"chantier/internal/auth"
)

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password [password]",
	Short: "Print the bcrypt hash to use as APP_PASSWORD_HASH",
	Long: `Print the bcrypt hash of the household password.

Without an argument the password is read from the first line of stdin.

Example:
  echo 'secret' | chantierctl hash-password`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		plain, err := passwordArg(cmd, args)
		exitOnError(err, "no password given")
		hash, err := auth.HashPassword(plain)
		exitOnError(err, "failed to hash password")
		fmt.Fprintln(cmd.OutOrStdout(), hash)
	},
}

func passwordArg(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		if err != nil {
			return "", err
		}
		return "", errors.New("empty password")
	}
	return line, nil
}
