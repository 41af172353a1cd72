package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/bryan-buckman/turfcollector/internal/collector"
	"github.com/bryan-buckman/turfcollector/internal/turfapi"
	"github.com/spf13/cobra"
)

func (a *app) buildUsersCommand() *cobra.Command {
	var ids []int
	cmd := &cobra.Command{
		Use:   "users [name]...",
		Short: "Look up users by name or id",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			var queries []turfapi.UserQuery
			for _, name := range args {
				queries = append(queries, turfapi.UserQuery{Name: name})
			}
			for _, id := range ids {
				queries = append(queries, turfapi.UserQuery{ID: id})
			}
			if len(queries) == 0 {
				return fmt.Errorf("users needs at least one name or --id")
			}

			client := turfapi.NewClient(cfg.BaseURL, cfg.HTTPTimeout)
			policy := retryPolicy(cfg)
			policy.Retryable = func(c turfapi.Class) bool {
				return c == turfapi.ClassRateLimited || c == turfapi.ClassTransportFailure
			}
			var queryErr error
			out, _, err := collector.Retry(cmd.Context(), policy, collector.SystemClock{},
				func(ctx context.Context, _ int) (turfapi.Outcome, turfapi.Class) {
					o, err := client.LookupUsers(ctx, queries)
					if err != nil {
						queryErr = err
						return o, turfapi.ClassOK
					}
					return o, o.Class
				})
			if err != nil {
				return err
			}
			if queryErr != nil {
				return queryErr
			}
			if out.Class != turfapi.ClassOK {
				if out.Err != nil {
					return fmt.Errorf("lookup users: %s: %w", out.Class, out.Err)
				}
				return fmt.Errorf("lookup users: %s (status %d) %s", out.Class, out.StatusCode, turfapi.Prefix(out.Body, 80))
			}

			var buf bytes.Buffer
			if err := json.Indent(&buf, []byte(out.Body), "", "  "); err != nil {
				return fmt.Errorf("lookup users: %w", err)
			}
			buf.WriteByte('\n')
			_, err = a.stdout.Write(buf.Bytes())
			return err
		},
	}
	cmd.Flags().IntSliceVar(&ids, "id", nil, "user id to look up (repeatable)")
	return cmd
}
