package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"

	"github.com/pharmref-mcp-server/internal/database"
	"github.com/pharmref-mcp-server/internal/domain"
	"github.com/pharmref-mcp-server/internal/search"
	"github.com/pharmref-mcp-server/internal/service"
	"github.com/pharmref-mcp-server/internal/store"
)

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:          "pharmref",
		Short:        "Drug organ-toxicity reference administration",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
	}
	rootCmd.PersistentFlags().StringVar(&a.configFile, "config", "", "Path to config.yaml (default: ./config.yaml, ./config/, /etc/pharmref/)")
	rootCmd.PersistentFlags().StringVar(&a.password, "password", "", "Admin password for commands that change reference data")

	rootCmd.AddCommand(
		seedCmd(a),
		resetCmd(a),
		exportCmd(a),
		importCmd(a),
		searchCmd(a),
		analyzeCmd(a),
		migrateCmd(a),
		drugCmd(a),
		ruleCmd(a),
		setupCmd(a),
		pingCmd(a),
	)
	return rootCmd
}

func seedCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load the bundled dataset into empty tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd, func(ctx context.Context, st store.Store) error {
				result, err := store.SeedIfEmpty(ctx, st, a.logger)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d drug(s) and %d rule(s).\n", result.Drugs, result.Rules)
				return nil
			})
		},
	}
}

func resetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Replace all drugs and rules with the bundled dataset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireAdmin(); err != nil {
				return err
			}
			return a.withStore(cmd, func(ctx context.Context, st store.Store) error {
				result, err := store.Reset(ctx, st, a.logger)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Reset to %d drug(s) and %d rule(s).\n", result.Drugs, result.Rules)
				return nil
			})
		},
	}
}

func exportCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write drugs and rules to a JSON file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out, _ := cmd.Flags().GetString("out")
			now := time.Now()
			if out == "" {
				out = store.ExportFileName(now)
			}

			return a.withStore(cmd, func(ctx context.Context, st store.Store) error {
				if out == "-" {
					return store.ExportJSON(ctx, st, cmd.OutOrStdout(), now)
				}
				f, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", out, err)
				}
				defer f.Close()
				if err := store.ExportJSON(ctx, st, f, now); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Exported to %s\n", out)
				return nil
			})
		},
	}
	cmd.Flags().String("out", "", "Output file, - for stdout (default: pharmref_data_<date>.json)")
	return cmd
}

func importCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Replace drugs and rules from an export file",
		Long:  "Replace drugs and rules from an export file. A table is only replaced when the file's list for it is non-empty.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireAdmin(); err != nil {
				return err
			}
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", args[0], err)
			}
			defer f.Close()

			return a.withStore(cmd, func(ctx context.Context, st store.Store) error {
				result, err := store.ImportJSON(ctx, st, f, a.logger)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %d drug(s) and %d rule(s).\n", result.Drugs, result.Rules)
				return nil
			})
		},
	}
}

func searchCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search drugs by name, brand or class",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			return a.withStore(cmd, func(ctx context.Context, st store.Store) error {
				drugs, err := st.ListDrugs(ctx)
				if err != nil {
					return err
				}
				hits := search.Search(drugs, args[0], limit)
				if len(hits) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No matching drugs.")
					return nil
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tNAME\tLOCAL NAME\tHEPATIC\tRENAL")
				for i := range hits {
					d := &hits[i]
					renal := "-"
					if d.HasRenalData() {
						renal = string(d.Nephrotoxicity.Grade)
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", d.ID, d.NameEN, d.NameLocal, d.Hepatotoxicity.Grade, renal)
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().Int("limit", 20, "Maximum number of results, 0 for all")
	return cmd
}

func analyzeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Score a drug selection and list triggered alerts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, _ := cmd.Flags().GetStringSlice("drug")
			hepaticFlag, _ := cmd.Flags().GetString("hepatic")
			renalFlag, _ := cmd.Flags().GetString("renal")
			alcohol, _ := cmd.Flags().GetString("alcohol")
			asJSON, _ := cmd.Flags().GetBool("json")

			hepaticStage, err := domain.ParseHepaticStage(hepaticFlag)
			if err != nil {
				return err
			}
			renalStage, err := domain.ParseRenalStage(renalFlag)
			if err != nil {
				return err
			}

			return a.withStore(cmd, func(ctx context.Context, st store.Store) error {
				drugs := make([]domain.Drug, 0, len(ids))
				for _, id := range ids {
					drug, err := st.GetDrug(ctx, id)
					if err != nil {
						return fmt.Errorf("failed to load drug %q: %w", id, err)
					}
					drugs = append(drugs, *drug)
				}
				rules, err := st.ListRules(ctx)
				if err != nil {
					return err
				}

				result := service.NewAnalyzer(a.logger).Analyze(drugs, hepaticStage, renalStage, rules)
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), result)
				}
				fmt.Fprint(cmd.OutOrStdout(), service.FormatTextReport(result, service.ReportOptions{
					GeneratedAt:    time.Now(),
					AlcoholHistory: alcohol,
				}))
				return nil
			})
		},
	}
	cmd.Flags().StringSlice("drug", nil, "Drug id, repeatable or comma separated")
	cmd.Flags().String("hepatic", "normal", "Child-Pugh class: normal, A, B, C")
	cmd.Flags().String("renal", "normal", "CKD stage: normal, G2, G3a, G3b, G4, G5, dialysis")
	cmd.Flags().String("alcohol", "", "Alcohol history printed in the report header")
	cmd.Flags().Bool("json", false, "Print the analysis as JSON")
	return cmd
}

func migrateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run Postgres schema migrations",
	}

	run := func(cmd *cobra.Command, fn func(ctx context.Context, mr *database.MigrationRunner) error) error {
		if a.cfg.Storage.Driver != "postgres" {
			return fmt.Errorf("migrations apply to the postgres driver only (driver is %q)", a.cfg.Storage.Driver)
		}
		pg := a.manager.GetDatabaseConfig()
		mr, err := database.NewMigrationRunner(database.ConfigFromDomain(*pg).URL(), pg.MigrationsPath, a.logger)
		if err != nil {
			return err
		}
		defer mr.Close()
		return fn(cmd.Context(), mr)
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply pending migrations",
			RunE: func(cmd *cobra.Command, args []string) error {
				return run(cmd, func(ctx context.Context, mr *database.MigrationRunner) error {
					return mr.Up(ctx)
				})
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the latest migration",
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := a.requireAdmin(); err != nil {
					return err
				}
				return run(cmd, func(ctx context.Context, mr *database.MigrationRunner) error {
					return mr.Down(ctx)
				})
			},
		},
		&cobra.Command{
			Use:   "force <version>",
			Short: "Mark a version as applied and clear the dirty flag",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := a.requireAdmin(); err != nil {
					return err
				}
				version, err := strconv.Atoi(args[0])
				if err != nil {
					return domain.NewValidationError("version", "must be an integer", args[0])
				}
				return run(cmd, func(ctx context.Context, mr *database.MigrationRunner) error {
					return mr.Force(version)
				})
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Show the current schema version",
			RunE: func(cmd *cobra.Command, args []string) error {
				return run(cmd, func(ctx context.Context, mr *database.MigrationRunner) error {
					version, dirty, err := mr.Version()
					if errors.Is(err, migrate.ErrNilVersion) {
						fmt.Fprintln(cmd.OutOrStdout(), "No migrations applied.")
						return nil
					}
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Version %d (dirty: %t)\n", version, dirty)
					return nil
				})
			},
		},
	)
	return cmd
}

func pingCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check the reference store and print its row counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if a.cfg.Storage.Driver == "postgres" {
				db, err := a.connectPostgres(cmd.Context())
				if err != nil {
					return err
				}
				defer db.Close()
				if err := db.Health(cmd.Context()); err != nil {
					return fmt.Errorf("database health check failed: %w", err)
				}
				stats := db.Stats()
				fmt.Fprintf(out, "Pool: %d total, %d idle, %d max connection(s)\n",
					stats.TotalConns(), stats.IdleConns(), stats.MaxConns())
			}

			return a.withStore(cmd, func(ctx context.Context, st store.Store) error {
				if err := st.Ping(ctx); err != nil {
					return fmt.Errorf("store ping failed: %w", err)
				}
				drugs, err := st.CountDrugs(ctx)
				if err != nil {
					return err
				}
				rules, err := st.CountRules(ctx)
				if err != nil {
					return err
				}
				revision, err := st.Revision(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Store %s ok: %d drug(s), %d rule(s), revision %d\n",
					a.cfg.Storage.Driver, drugs, rules, revision)
				return nil
			})
		},
	}
}

func drugCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drug",
		Short: "Inspect and edit drug records",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "get <id>",
			Short: "Print one drug as JSON",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.withStore(cmd, func(ctx context.Context, st store.Store) error {
					drug, err := st.GetDrug(ctx, args[0])
					if err != nil {
						return err
					}
					return writeJSON(cmd.OutOrStdout(), drug)
				})
			},
		},
		&cobra.Command{
			Use:   "put <file>",
			Short: "Add or replace a drug from a JSON file",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := a.requireAdmin(); err != nil {
					return err
				}
				var drug domain.Drug
				if err := readJSON(args[0], &drug); err != nil {
					return err
				}
				return a.withStore(cmd, func(ctx context.Context, st store.Store) error {
					if err := st.SaveDrug(ctx, &drug); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Saved drug %s\n", drug.ID)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "delete <id>",
			Short: "Delete a drug",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := a.requireAdmin(); err != nil {
					return err
				}
				return a.withStore(cmd, func(ctx context.Context, st store.Store) error {
					if err := st.DeleteDrug(ctx, args[0]); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Deleted drug %s\n", args[0])
					return nil
				})
			},
		},
	)
	return cmd
}

func ruleCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rule",
		Short: "Inspect and edit alert rules",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List alert rules in evaluation order",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.withStore(cmd, func(ctx context.Context, st store.Store) error {
					rules, err := st.ListRules(ctx)
					if err != nil {
						return err
					}
					w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
					fmt.Fprintln(w, "ID\tLEVEL\tCATEGORY\tTITLE")
					for _, r := range rules {
						category := r.Category
						if category == "" {
							category = domain.CategoryHepato
						}
						fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.ID, domain.AlertLevelLabel(r.Level), category, r.Title)
					}
					return w.Flush()
				})
			},
		},
		&cobra.Command{
			Use:   "put <file>",
			Short: "Add or replace an alert rule from a JSON file",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := a.requireAdmin(); err != nil {
					return err
				}
				var rule domain.AlertRule
				if err := readJSON(args[0], &rule); err != nil {
					return err
				}
				return a.withStore(cmd, func(ctx context.Context, st store.Store) error {
					if err := st.SaveRule(ctx, &rule); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Saved rule %s\n", rule.ID)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "delete <id>",
			Short: "Delete an alert rule",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := a.requireAdmin(); err != nil {
					return err
				}
				return a.withStore(cmd, func(ctx context.Context, st store.Store) error {
					if err := st.DeleteRule(ctx, args[0]); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Deleted rule %s\n", args[0])
					return nil
				})
			},
		},
	)
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func readJSON(path string, v any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}
