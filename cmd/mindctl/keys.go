package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/mind-classifier/internal/auth/apikey"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/pkg/postgres"
)

func newKeysCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage admin keys for model-management routes",
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", "configs/development.yaml", "config file with postgres settings")

	var name string
	var scopes []string
	var ttl time.Duration
	create := &cobra.Command{
		Use:   "create --name <name>",
		Short: "Create a key and print it once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(cmd, configPath, func(ctx context.Context, db *postgres.Client) error {
				raw, info, err := apikey.NewStore(db).Create(ctx, name, scopes, ttl)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "id:     %s\nkey:    %s\nscopes: %s\n", info.ID, raw, strings.Join(info.Scopes, ","))
				if info.ExpiresAt != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "expires: %s\n", info.ExpiresAt.Format(time.RFC3339))
				}
				return nil
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "key name")
	create.Flags().StringSliceVar(&scopes, "scope", []string{apikey.ScopeReload}, "granted scopes")
	create.Flags().DurationVar(&ttl, "ttl", 0, "lifetime (0 never expires)")
	_ = create.MarkFlagRequired("name")

	list := &cobra.Command{
		Use:   "list",
		Short: "List active keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(cmd, configPath, func(ctx context.Context, db *postgres.Client) error {
				keys, err := apikey.NewStore(db).List(ctx)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME\tSCOPES\tCREATED\tEXPIRES")
				for _, k := range keys {
					expires := "never"
					if k.ExpiresAt != nil {
						expires = k.ExpiresAt.Format(time.RFC3339)
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", k.ID, k.Name, strings.Join(k.Scopes, ","), k.CreatedAt.Format(time.RFC3339), expires)
				}
				return tw.Flush()
			})
		},
	}

	revoke := &cobra.Command{
		Use:   "revoke <id>",
		Short: "Deactivate a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(cmd, configPath, func(ctx context.Context, db *postgres.Client) error {
				if err := apikey.NewStore(db).Revoke(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "revoked %s\n", args[0])
				return nil
			})
		},
	}

	cmd.AddCommand(create, list, revoke)
	return cmd
}
