// coachpilot reacts to inbound client messages: it reconciles each message
// against the client's active coaching plan and keeps a single current draft
// reply. The event trigger itself is external; the send command stands in for
// it by inserting a message event and invoking the pipeline on it.
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/mtredway/coachpilot/internal/config"
	"github.com/mtredway/coachpilot/internal/llm"
	"github.com/mtredway/coachpilot/internal/pipeline"
	"github.com/mtredway/coachpilot/internal/prompt"
	"github.com/mtredway/coachpilot/internal/store"
	"github.com/mtredway/coachpilot/internal/types"
)

func main() {
	_ = godotenv.Load(".env")

	level := slog.LevelInfo
	if os.Getenv("COACHPILOT_DEBUG") == "true" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	root := &cobra.Command{
		Use:           "coachpilot",
		Short:         "Reconcile client messages against coaching plans",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(seedCmd(), sendCmd(), eventsCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// openStore opens the configured LevelDB store.
func openStore(cfg config.Config) (*store.LevelStore, error) {
	return store.Open(cfg.StorePath)
}

// buildPipeline wires store + oracle + rulebook into a Pipeline.
func buildPipeline(cfg config.Config, st store.Store) (*pipeline.Pipeline, error) {
	opts := []pipeline.Option{
		pipeline.WithEventWindow(cfg.EventWindow),
		pipeline.WithAsyncOracle(cfg.AsyncOracle),
	}
	if cfg.RulesPath != "" {
		rules, err := prompt.LoadRules(cfg.RulesPath)
		if err != nil {
			return nil, err
		}
		opts = append(opts, pipeline.WithRules(rules))
	}
	return pipeline.New(st, llm.New(), opts...), nil
}

func sendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send <clientId> <message>",
		Short: "Insert an inbound client message and run the pipeline on it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			p, err := buildPipeline(cfg, st)
			if err != nil {
				return err
			}

			clientID := args[0]
			ev := types.Event{
				Type:    types.EventMessage,
				Content: args[1],
				Inbound: true,
				Time:    time.Now().UTC(),
			}
			eventID, err := st.InsertEvent(clientID, ev)
			if err != nil {
				return err
			}
			ev.ID = eventID
			slog.Info("[SEND] inserted message", "client_id", clientID, "event_id", eventID)

			return p.HandleEvent(cmd.Context(), clientID, eventID, ev)
		},
	}
	return cmd
}

func eventsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "events <clientId>",
		Short: "Dump a client's event log, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			events, err := st.Events(args[0], limit)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			for _, ev := range events {
				if err := enc.Encode(ev); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum events to print (0 = all)")
	return cmd
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed <clientId>",
		Short: "Write a worked sample client (profile, summary, plan)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			clientID := args[0]
			now := time.Now().UTC()
			client := types.Client{
				ClientID: clientID,
				Profile: types.Profile{
					Name:          "Sam Harper",
					CoachingStyle: types.StyleMotivational,
					GoalText:      "Drop 6kg before the spring race season",
				},
				Summary: types.Summary{
					State:    types.StateEngaged,
					Synopsis: "Consistent for three weeks, responds well to concrete targets.",
				},
			}
			if err := st.PutClient(client); err != nil {
				return err
			}

			p := types.Plan{
				PlanID:    "plan-" + now.Format("20060102"),
				StartDate: now.AddDate(0, -1, 0).Format("2006-01-02"),
				EndDate:   now.AddDate(0, 2, 0).Format("2006-01-02"),
				Goals: []types.Goal{
					{
						Title: "Lose Weight",
						Tactics: []types.Tactic{
							{Title: "Do 4 workouts per week", Frequency: "4x weekly"},
							{Title: "No late-night snacks", Frequency: "daily"},
						},
						Measurements: []types.Measurement{
							{Title: "Weight", Unit: "kg", Start: 86, Goal: 80},
						},
					},
				},
			}
			if err := st.PutPlan(clientID, p); err != nil {
				return err
			}
			slog.Info("[SEED] wrote sample client", "client_id", clientID, "plan_id", p.PlanID)
			return nil
		},
	}
	return cmd
}
