package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/mind-classifier/internal/artifact"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/internal/registry"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/pkg/postgres"
)

const registryTimeout = 30 * time.Second

// withDB connects to the Postgres database named by the config file and
// runs fn against it.
func withDB(cmd *cobra.Command, configPath string, fn func(ctx context.Context, db *postgres.Client) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		return err
	}
	defer db.Close()
	ctx, cancel := context.WithTimeout(cmd.Context(), registryTimeout)
	defer cancel()
	return fn(ctx, db)
}

func withStore(cmd *cobra.Command, configPath string, fn func(ctx context.Context, s *registry.PostgresStore) error) error {
	return withDB(cmd, configPath, func(ctx context.Context, db *postgres.Client) error {
		return fn(ctx, registry.NewPostgresStore(db))
	})
}

func newPublishCmd() *cobra.Command {
	var configPath, name, file, kind, namesPath string
	var all bool
	cmd := &cobra.Command{
		Use:   "publish --name <model> --file <artifact>",
		Short: "Store an artifact as the active version in the Postgres registry",
		Long: `publish validates an artifact and stores it as the next active version.

With --all, every model listed in the config's models section is read from
the models directory and published.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if all {
				cfg, err := config.Load(configPath)
				if err != nil {
					return err
				}
				return withStore(cmd, configPath, func(ctx context.Context, s *registry.PostgresStore) error {
					entries, err := registry.NewFileSource(cfg.Models).Fetch(ctx)
					if err != nil {
						return err
					}
					for _, e := range entries {
						v, err := s.Publish(ctx, e.Name, e.Kind, e.Payload, e.ClassNames)
						if err != nil {
							return err
						}
						fmt.Fprintf(cmd.OutOrStdout(), "%s v%d\n", e.Name, v)
					}
					return nil
				})
			}

			if name == "" || file == "" {
				return fmt.Errorf("--name and --file are required without --all")
			}
			payload, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("reading %s: %w", file, err)
			}
			var k artifact.Kind
			if kind != "" {
				k, err = artifact.ParseKind(kind)
			} else {
				k, err = artifact.DetectKind(payload)
			}
			if err != nil {
				return err
			}
			names, err := loadNames(namesPath)
			if err != nil {
				return err
			}
			return withStore(cmd, configPath, func(ctx context.Context, s *registry.PostgresStore) error {
				v, err := s.Publish(ctx, name, k, payload, names)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s v%d\n", name, v)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "configs/development.yaml", "config file with postgres settings")
	cmd.Flags().StringVar(&name, "name", "", "model name")
	cmd.Flags().StringVar(&file, "file", "", "artifact file")
	cmd.Flags().StringVar(&kind, "kind", "", "document or token (default: detected)")
	cmd.Flags().StringVar(&namesPath, "names", "", "JSON list of class names to store with the artifact")
	cmd.Flags().BoolVar(&all, "all", false, "publish every model in the config")
	return cmd
}

func newVersionsCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "versions <model>",
		Short: "List stored versions of a model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, configPath, func(ctx context.Context, s *registry.PostgresStore) error {
				versions, err := s.Versions(ctx, args[0])
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "VERSION\tKIND\tACTIVE\tHASH\tCREATED")
				for _, v := range versions {
					active := ""
					if v.Active {
						active = "*"
					}
					fmt.Fprintf(tw, "%d\t%s\t%s\t%.12s\t%s\n", v.Version, v.Kind, active, v.Hash, v.CreatedAt.Format(time.RFC3339))
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "configs/development.yaml", "config file with postgres settings")
	return cmd
}

func newActivateCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "activate <model> <version>",
		Short: "Make a stored version the active one",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid version %q", args[1])
			}
			return withStore(cmd, configPath, func(ctx context.Context, s *registry.PostgresStore) error {
				if err := s.Activate(ctx, args[0], version); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s v%d active\n", args[0], version)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "configs/development.yaml", "config file with postgres settings")
	return cmd
}
