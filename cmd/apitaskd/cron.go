package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"apitask/internal/task/cronexpr"
)

func newCronCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cron",
		Short: "Schedule expression helpers",
	}
	cmd.AddCommand(newCronNextCmd())
	return cmd
}

func newCronNextCmd() *cobra.Command {
	var (
		count int
		tz    string
	)
	cmd := &cobra.Command{
		Use:     "next <expr>",
		Short:   "Print the next fire times of a 6-field schedule expression",
		Example: `  apitaskd cron next "0 0 1 * * *" -n 3 --tz Asia/Shanghai`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loc := time.Local
			if tz = strings.TrimSpace(tz); tz != "" {
				l, err := time.LoadLocation(tz)
				if err != nil {
					return err
				}
				loc = l
			}
			tr, err := cronexpr.Parse(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s\n", tr.Expr())
			for _, t := range tr.NextN(time.Now().In(loc), count) {
				fmt.Fprintln(out, t.Format(time.RFC3339))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 5, "number of fire times")
	cmd.Flags().StringVar(&tz, "tz", "", "IANA timezone (default: local)")
	return cmd
}
