package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"gitlab.com/opensubmit.net/internal/adapter/sqldb"
	logger2 "gitlab.com/opensubmit.net/internal/global/logger"
)

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				if err := sqldb.Migrate(ctx, a.db); err != nil {
					return err
				}
				logger2.Info("Database migrated", "driver", a.cfg.DatabaseConfig.Driver)
				return nil
			})
		},
	}
}

func newMachinesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "machines",
		Short: "inspect and toggle test machines",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "list registered test machines",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				machines, err := a.machines.List(ctx)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tHOST\tENABLED\tONLINE\tLAST CONTACT")
				for _, m := range machines {
					lastContact := "never"
					if m.LastContact.Valid {
						lastContact = m.LastContact.Time.Format(time.RFC3339)
					}
					fmt.Fprintf(w, "%s\t%s\t%t\t%t\t%s\n", m.ID, m.Host, m.Enabled, m.Online, lastContact)
				}
				return w.Flush()
			})
		},
	})

	for _, enable := range []bool{true, false} {
		enable := enable
		use, short := "enable <machine-id>", "allow a machine to receive jobs"
		if !enable {
			use, short = "disable <machine-id>", "stop handing jobs to a machine"
		}
		cmd.AddCommand(&cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := uuid.Parse(args[0])
				if err != nil {
					return fmt.Errorf("invalid machine id %q: %w", args[0], err)
				}
				return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
					if enable {
						return a.machines.Enable(ctx, id)
					}
					return a.machines.Disable(ctx, id)
				})
			},
		})
	}
	return cmd
}

func newFixChecksumsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "fixchecksums",
		Short: "re-hash stored submission files and repair changed checksums",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				fixed, err := a.submissions.FixChecksums(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d checksums updated\n", fixed)
				return nil
			})
		},
	}
}

func newTokenCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "manage staff API tokens",
	}

	var subject string
	var ttl time.Duration
	issue := &cobra.Command{
		Use:   "issue",
		Short: "mint a staff token signed with JWT_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				if ttl <= 0 {
					ttl = a.cfg.JwtConfig.TokenTTL
				}
				token, err := a.jwt.IssueStaffToken(ctx, subject, ttl)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), token)
				return nil
			})
		},
	}
	issue.Flags().StringVar(&subject, "subject", "", "name of the staff member")
	issue.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to JWT_TTL_SEC)")
	_ = issue.MarkFlagRequired("subject")

	cmd.AddCommand(issue)
	return cmd
}

// withApp wires the services, runs fn and releases the connections
func withApp(ctx context.Context, fn func(ctx context.Context, a *app) error) error {
	a, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := fn(ctx, a); err != nil {
		logger2.Error("Command failed", "error", err)
		return err
	}
	return nil
}

