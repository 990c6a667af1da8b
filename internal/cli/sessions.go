package cli

import (
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newSessionsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List persisted chat sessions, most recent first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, closeStore, err := openStore(a.cfg.Store.Path)
			if err != nil {
				return err
			}
			defer func() { _ = closeStore() }()

			sessions, err := st.LoadAllSessions()
			if err != nil {
				return err
			}
			sort.SliceStable(sessions, func(i, j int) bool {
				return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
			})

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTITLE\tMESSAGES\tUPDATED")
			for _, s := range sessions {
				title := s.Title
				if s.IsArchived {
					title += " (archived)"
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", s.ID, title, len(s.Messages), s.UpdatedAt.Local().Format(time.DateTime))
			}
			return w.Flush()
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "delete ID",
		Short: "Delete a persisted session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, closeStore, err := openStore(a.cfg.Store.Path)
			if err != nil {
				return err
			}
			defer func() { _ = closeStore() }()

			if err := st.DeleteSession(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	})
	return cmd
}
