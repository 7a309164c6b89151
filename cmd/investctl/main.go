package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/ssugameworks/invest-system-backend/internal/app"
	"github.com/ssugameworks/invest-system-backend/internal/config"
	"github.com/ssugameworks/invest-system-backend/internal/ledger"
	"github.com/ssugameworks/invest-system-backend/internal/model"
	"github.com/ssugameworks/invest-system-backend/internal/scheduler"
	"github.com/ssugameworks/invest-system-backend/internal/settings"
	"github.com/ssugameworks/invest-system-backend/internal/store"
)

// env is what every subcommand works against.
type env struct {
	cfg     config.Config
	logger  *slog.Logger
	backend *app.Backend
}

func main() {
	var configPath string

	root := &cobra.Command{
		Use:          "investctl",
		Short:        "Operator tool for the investment game database",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", os.Getenv("CONFIG_FILE"), "path to a YAML config file")

	open := func(cmd *cobra.Command, migrate bool) (*env, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		if cfg.DB.URL == "" {
			return nil, errors.New("db.url (DATABASE_URL) is required")
		}
		cfg.DB.Migrate = migrate
		logger := cfg.Log.Logger(os.Stderr)
		b, err := app.Open(cmd.Context(), cfg, logger)
		if err != nil {
			return nil, err
		}
		return &env{cfg: cfg, logger: logger, backend: b}, nil
	}

	root.AddCommand(
		newMigrateCmd(open),
		newRecalcCmd(open),
		newTeamCmd(open),
		newConfigCmd(open),
		newUserCmd(open),
	)

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type opener func(cmd *cobra.Command, migrate bool) (*env, error)

func newMigrateCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the schema and seed the pricing configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := open(cmd, true)
			if err != nil {
				return err
			}
			defer e.backend.Close()
			fmt.Println("schema is up to date")
			return nil
		},
	}
}

func newRecalcCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "recalc",
		Short: "Run one price recalculation cycle",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := open(cmd, false)
			if err != nil {
				return err
			}
			defer e.backend.Close()

			src := settings.NewSource(e.backend.Store, e.cfg.Pricing, e.logger)
			sum, err := scheduler.New(e.backend.Store, src, e.logger).RecalculatePrices(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(sum)
		},
	}
}

func newTeamCmd(open opener) *cobra.Command {
	team := &cobra.Command{
		Use:   "team",
		Short: "Manage competition teams",
	}

	var (
		name   string
		status string
		p0     int64
	)
	add := &cobra.Command{
		Use:   "add",
		Short: "Register a team",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				return errors.New("--name is required")
			}
			if p0 <= 0 {
				return errors.New("--p0 must be positive")
			}
			e, err := open(cmd, false)
			if err != nil {
				return err
			}
			defer e.backend.Close()

			t := &model.Team{Name: name, Status: status, P0: p0}
			if err := e.backend.Store.CreateTeam(cmd.Context(), t); err != nil {
				return err
			}
			fmt.Printf("team %d %q created (p0=%d)\n", t.ID, t.Name, t.P0)
			return nil
		},
	}
	add.Flags().StringVar(&name, "name", "", "team name")
	add.Flags().StringVar(&status, "status", "upcoming", "team status")
	add.Flags().Int64Var(&p0, "p0", model.DefaultReferencePrice, "reference price")

	list := &cobra.Command{
		Use:   "list",
		Short: "List teams with their current prices",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := open(cmd, false)
			if err != nil {
				return err
			}
			defer e.backend.Close()

			teams, err := e.backend.Store.ListTeams(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tMONEY\tP\tP0")
			for _, t := range teams {
				p := "-"
				if t.P != nil {
					p = strconv.FormatInt(*t.P, 10)
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%d\n", t.ID, t.Name, t.Status, t.Money, p, t.P0)
			}
			return tw.Flush()
		},
	}

	team.AddCommand(add, list)
	return team
}

func newConfigCmd(open opener) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Read or change the persisted pricing configuration",
	}

	get := &cobra.Command{
		Use:   "get",
		Short: "Show the effective pricing configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := open(cmd, false)
			if err != nil {
				return err
			}
			defer e.backend.Close()

			entries, err := settings.NewSource(e.backend.Store, e.cfg.Pricing, e.logger).Entries(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KEY\tVALUE\tSOURCE")
			for _, en := range entries {
				source := "default"
				if en.Persisted {
					source = "db"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", en.Key, en.Value.String(), source)
			}
			return tw.Flush()
		},
	}

	set := &cobra.Command{
		Use:   "set KEY VALUE [KEY VALUE...]",
		Short: "Persist pricing configuration values",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 || len(args)%2 != 0 {
				return errors.New("expected KEY VALUE pairs")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			values := make(map[string]decimal.Decimal, len(args)/2)
			for i := 0; i < len(args); i += 2 {
				v, err := decimal.NewFromString(args[i+1])
				if err != nil {
					return fmt.Errorf("value for %s: %w", args[i], err)
				}
				values[args[i]] = v
			}

			e, err := open(cmd, false)
			if err != nil {
				return err
			}
			defer e.backend.Close()

			params, err := settings.NewSource(e.backend.Store, e.cfg.Pricing, e.logger).Update(cmd.Context(), values)
			if err != nil {
				return err
			}
			return printJSON(params)
		},
	}

	cfgCmd.AddCommand(get, set)
	return cfgCmd
}

func newUserCmd(open opener) *cobra.Command {
	user := &cobra.Command{
		Use:   "user",
		Short: "Manage player accounts",
	}

	del := &cobra.Command{
		Use:   "delete ID [ID...]",
		Short: "Delete users and refund their investments to the teams",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, 0, len(args))
			for _, a := range args {
				id, err := strconv.ParseInt(a, 10, 64)
				if err != nil || id <= 0 {
					return fmt.Errorf("invalid user id %q", a)
				}
				ids = append(ids, id)
			}

			e, err := open(cmd, false)
			if err != nil {
				return err
			}
			defer e.backend.Close()

			res := ledger.NewService(e.backend.Store, e.cfg.Game.InitialCapital, e.logger).DeleteUsers(cmd.Context(), ids)
			if err := printJSON(res); err != nil {
				return err
			}
			if res.DeletedCount < len(ids) {
				return fmt.Errorf("%d of %d deletions failed", len(ids)-res.DeletedCount, len(ids))
			}
			return nil
		},
	}

	show := &cobra.Command{
		Use:   "show ID",
		Short: "Show a user's balances",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid user id %q", args[0])
			}
			e, err := open(cmd, false)
			if err != nil {
				return err
			}
			defer e.backend.Close()

			u, err := e.backend.Store.GetUser(cmd.Context(), id)
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("user %d not found", id)
			}
			if err != nil {
				return err
			}
			return printJSON(u)
		},
	}

	user.AddCommand(del, show)
	return user
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
