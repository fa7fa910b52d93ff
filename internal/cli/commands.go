package cli

import (
	"fmt"
	"strings"
	"time"

	"kabupilot/internal/agent"
	"kabupilot/internal/app"
	"kabupilot/internal/pipeline"
	"kabupilot/internal/transport/payload"

	"github.com/spf13/cobra"
)

func newInitDBCmd(e *env) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init-db",
		Short: "Create the schema, seed cash, knowledge and the default watchlist",
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withRuntime(cmd.Context(), func(rt *app.Runtime) error {
				report, err := rt.InitDB(cmd.Context(), force)
				return writeResult(e.stdout, report, err)
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "reset portfolios and knowledge to the templates")
	return cmd
}

func newShowPortfolioCmd(e *env) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show-portfolio",
		Short: "Show cash, positions, watchlist and capital for the active market",
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withRuntime(cmd.Context(), func(rt *app.Runtime) error {
				view, err := rt.ShowPortfolio(cmd.Context())
				if err != nil || asJSON {
					return writeResult(e.stdout, view, err)
				}
				_, err = fmt.Fprintln(e.stdout, renderPortfolio(view))
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func newPlanWeekCmd(e *env) *cobra.Command {
	var weekStart string
	cmd := &cobra.Command{
		Use:   "plan-week",
		Short: "Generate and persist the weekly goal for the active market",
		RunE: func(cmd *cobra.Command, args []string) error {
			start := time.Now()
			if s := strings.TrimSpace(weekStart); s != "" {
				t, err := time.Parse(agent.DateLayout, s)
				if err != nil {
					return payload.Field("week_start", "expected "+agent.DateLayout)
				}
				start = t
			}
			return e.withRuntime(cmd.Context(), func(rt *app.Runtime) error {
				plan, err := rt.Pipeline.PlanWeek(cmd.Context(), start)
				return writeResult(e.stdout, plan, err)
			})
		},
	}
	cmd.Flags().StringVar(&weekStart, "week-start", "", "week start date (YYYY-MM-DD), defaults to this week")
	return cmd
}

func newRunDayCmd(e *env) *cobra.Command {
	var payloadPath string
	cmd := &cobra.Command{
		Use:   "run-day",
		Short: "Run explore, research, decide and apply for one trading day",
		RunE: func(cmd *cobra.Command, args []string) error {
			var req pipeline.DayRequest
			if _, err := readPayload(payloadPath, cmd.InOrStdin(), &req); err != nil {
				return err
			}
			return e.withRuntime(cmd.Context(), func(rt *app.Runtime) error {
				daily, _, err := rt.Pipeline.ResolveDay(cmd.Context(), req)
				if err != nil {
					return err
				}
				report, err := rt.Pipeline.RunTradingDay(cmd.Context(), daily)
				return writeResult(e.stdout, report, err)
			})
		},
	}
	cmd.Flags().StringVar(&payloadPath, "payload", "", `JSON file with {"goal": DailyGoal} ("-" for stdin)`)
	return cmd
}

func newReviewDayCmd(e *env) *cobra.Command {
	var payloadPath string
	cmd := &cobra.Command{
		Use:   "review-day",
		Short: "Summarise a run's activity and append a post-mortem to the knowledge memo",
		RunE: func(cmd *cobra.Command, args []string) error {
			var req pipeline.ReviewRequest
			if _, err := readPayload(payloadPath, cmd.InOrStdin(), &req); err != nil {
				return err
			}
			return e.withRuntime(cmd.Context(), func(rt *app.Runtime) error {
				activity, goal, err := rt.Pipeline.ResolveReview(cmd.Context(), req)
				if err != nil {
					return err
				}
				review, err := rt.Pipeline.ReviewDay(cmd.Context(), activity, goal)
				return writeResult(e.stdout, review, err)
			})
		},
	}
	cmd.Flags().StringVar(&payloadPath, "payload", "", `JSON file with {"run_id", "activity", "goal"} ("-" for stdin)`)
	return cmd
}

func newDailyCycleCmd(e *env) *cobra.Command {
	var payloadPath string
	cmd := &cobra.Command{
		Use:   "daily-cycle",
		Short: "Run the trading day followed by the review under one run id",
		RunE: func(cmd *cobra.Command, args []string) error {
			var req pipeline.DayRequest
			if _, err := readPayload(payloadPath, cmd.InOrStdin(), &req); err != nil {
				return err
			}
			return e.withRuntime(cmd.Context(), func(rt *app.Runtime) error {
				daily, weekly, err := rt.Pipeline.ResolveDay(cmd.Context(), req)
				if err != nil {
					return err
				}
				cycle, err := rt.Pipeline.RunDailyCycle(cmd.Context(), daily, weekly)
				return writeResult(e.stdout, cycle, err)
			})
		},
	}
	cmd.Flags().StringVar(&payloadPath, "payload", "", `JSON file with {"goal", "weekly_goal"} ("-" for stdin)`)
	return cmd
}

func newSetMarketCmd(e *env) *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "set-market <market>",
		Short: "Switch the active market",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withRuntime(cmd.Context(), func(rt *app.Runtime) error {
				sw, err := rt.Scope.SetMarket(cmd.Context(), args[0], refresh)
				return writeResult(e.stdout, sw, err)
			})
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh-watchlist", false, "replace the watchlist with the market template")
	return cmd
}

func newKnowledgeCmd(e *env) *cobra.Command {
	var market string
	cmd := &cobra.Command{
		Use:   "knowledge",
		Short: "Read the knowledge memo",
	}
	cmd.PersistentFlags().StringVar(&market, "market", "", "market to read, defaults to the active market")

	resolve := func(rt *app.Runtime, cmd *cobra.Command) (string, error) {
		if m := strings.ToLower(strings.TrimSpace(market)); m != "" {
			return m, nil
		}
		return rt.Scope.ActiveMarket(cmd.Context())
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "latest",
		Short: "Show the most recent entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withRuntime(cmd.Context(), func(rt *app.Runtime) error {
				m, err := resolve(rt, cmd)
				if err != nil {
					return err
				}
				entry, err := rt.Memo.Latest(cmd.Context(), m)
				return writeResult(e.stdout, entry, err)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "search <query>",
		Short: "Case-insensitive search over titles, symbols, sectors and content",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withRuntime(cmd.Context(), func(rt *app.Runtime) error {
				m, err := resolve(rt, cmd)
				if err != nil {
					return err
				}
				entries, err := rt.Memo.Search(cmd.Context(), m, strings.Join(args, " "))
				return writeResult(e.stdout, entries, err)
			})
		},
	})
	return cmd
}

func newActivityCmd(e *env) *cobra.Command {
	var (
		runID string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "activity",
		Short: "List persisted activity records",
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withRuntime(cmd.Context(), func(rt *app.Runtime) error {
				entries, err := rt.Pipeline.RecentActivity(cmd.Context(), runID, limit)
				return writeResult(e.stdout, entries, err)
			})
		},
	}
	cmd.Flags().StringVar(&runID, "run-id", "", "only records of this run")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum records when --run-id is empty")
	return cmd
}

func newServeCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.NewApp(e.cfg, e.configPath)
			if err != nil {
				return err
			}
			return a.Run(cmd.Context())
		},
	}
}
