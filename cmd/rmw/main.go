package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"remwork/internal/app"
	"remwork/internal/config"
	"remwork/internal/domain"
	"remwork/internal/repo"
	"remwork/internal/server"
	"remwork/internal/workflow"
)

var rootCmd = &cobra.Command{
	Use:   "rmw",
	Short: "Remwork CLI",
	Long: `Remwork runs the recommendation remediation workflow for model-risk findings.
A recommendation moves draft -> pending_response -> acknowledged -> plan review ->
in_progress -> closure review, and for priorities that require final approval,
through a global/regional approval fan-out before closing. Every transition is
audited in the status history ledger.`,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("REMWORK")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(recCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(approvalCmd())
	rootCmd.AddCommand(evidenceCmd())
	rootCmd.AddCommand(priorityCmd())
	rootCmd.AddCommand(regionCmd())
	rootCmd.AddCommand(rbacCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(serveCmd())
}

func withEngine(ctx context.Context, fn func(context.Context, workflow.Engine) error) error {
	workspace := viper.GetString("workspace")
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return err
	}
	if cfg == nil {
		cfg = config.Default()
	}
	conn, err := app.Bootstrap(ctx, workspace, cfg)
	if err != nil {
		return err
	}
	defer conn.Close()
	e := workflow.New(conn, cfg)
	return fn(ctx, e)
}

func actorID() string {
	return viper.GetString("actor-id")
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printJSONOrTable(v any) error {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "Workspace configuration"}
	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a default remwork.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			if cfg == nil {
				cfg = config.Default()
			}
			return printJSON(cfg)
		},
	})
	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Recommendation counts by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				counts, err := e.Repo.CountRecommendationsByStatus(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(counts)
			})
		},
	}
}

func recCmd() *cobra.Command {
	rec := &cobra.Command{Use: "rec", Short: "Manage recommendations"}
	rec.AddCommand(recCreateCmd())
	rec.AddCommand(recListCmd())
	rec.AddCommand(recShowCmd())
	rec.AddCommand(recUpdateCmd())
	rec.AddCommand(recFinalizeCmd())
	rec.AddCommand(recAcknowledgeCmd())
	rec.AddCommand(recDeclineCmd())
	rec.AddCommand(recRebuttalCmd())
	rec.AddCommand(recPlanCmd())
	rec.AddCommand(recClosureCmd())
	return rec
}

func recCreateCmd() *cobra.Command {
	var opts workflow.CreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a draft recommendation",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = actorID()
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				rec, err := e.Create(ctx, opts)
				if err != nil {
					return err
				}
				return printJSON(rec)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "recommendation id (generated when empty)")
	cmd.Flags().StringVar(&opts.ValidationRequestID, "validation-request", "", "source validation request id")
	cmd.Flags().StringVar(&opts.MonitoringCycleID, "monitoring-cycle", "", "source monitoring cycle id")
	cmd.Flags().StringVar(&opts.ModelID, "model", "", "model id")
	cmd.Flags().StringVar(&opts.Title, "title", "", "title")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringVar(&opts.RootCause, "root-cause", "", "root cause")
	cmd.Flags().StringVar(&opts.PriorityID, "priority", "", "priority id")
	cmd.Flags().StringVar(&opts.CategoryID, "category", "", "category id")
	cmd.Flags().StringVar(&opts.AssignedToID, "assignee", "", "assigned owner")
	cmd.Flags().StringVar(&opts.TargetDate, "target-date", "", "target date (RFC3339)")
	return cmd
}

func recListCmd() *cobra.Command {
	var f repo.RecommendationFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recommendations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				items, err := e.List(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Status", "Priority", "Assignee", "Target"})
				for _, r := range items {
					target := ""
					if r.CurrentTargetDate != nil {
						target = *r.CurrentTargetDate
					}
					tw.AppendRow(table.Row{r.ID, r.Title, r.CurrentStatus, r.PriorityID, r.AssignedToID, target})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.PriorityID, "priority", "", "priority filter")
	cmd.Flags().StringVar(&f.AssignedToID, "assignee", "", "assignee filter")
	cmd.Flags().StringVar(&f.ModelID, "model", "", "model filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "max rows")
	return cmd
}

func recShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one recommendation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				rec, err := e.Get(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(rec)
			})
		},
	}
	return cmd
}

func recUpdateCmd() *cobra.Command {
	var title, description, rootCause, priority, category, assignee, targetDate string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Edit descriptive fields on an open recommendation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := workflow.UpdateOptions{ActorID: actorID()}
			set := func(name string, value *string, dst **string) {
				if cmd.Flags().Changed(name) {
					*dst = value
				}
			}
			set("title", &title, &opts.Title)
			set("description", &description, &opts.Description)
			set("root-cause", &rootCause, &opts.RootCause)
			set("priority", &priority, &opts.PriorityID)
			set("category", &category, &opts.CategoryID)
			set("assignee", &assignee, &opts.AssignedToID)
			set("target-date", &targetDate, &opts.CurrentTargetDate)
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				rec, err := e.Update(ctx, args[0], opts)
				if err != nil {
					return err
				}
				return printJSON(rec)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringVar(&rootCause, "root-cause", "", "root cause")
	cmd.Flags().StringVar(&priority, "priority", "", "priority id")
	cmd.Flags().StringVar(&category, "category", "", "category id")
	cmd.Flags().StringVar(&assignee, "assignee", "", "assigned owner")
	cmd.Flags().StringVar(&targetDate, "target-date", "", "current target date (RFC3339)")
	return cmd
}

func recTransitionCmd(use, short string, fn func(ctx context.Context, e workflow.Engine, id string) (domain.Recommendation, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				rec, err := fn(ctx, e, args[0])
				if err != nil {
					return err
				}
				return printJSON(rec)
			})
		},
	}
}

func recFinalizeCmd() *cobra.Command {
	return recTransitionCmd("finalize <id>", "Finalize a draft", func(ctx context.Context, e workflow.Engine, id string) (domain.Recommendation, error) {
		return e.Finalize(ctx, id, actorID())
	})
}

func recAcknowledgeCmd() *cobra.Command {
	return recTransitionCmd("acknowledge <id>", "Acknowledge the finding", func(ctx context.Context, e workflow.Engine, id string) (domain.Recommendation, error) {
		return e.Acknowledge(ctx, id, actorID())
	})
}

func recDeclineCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "decline <id>",
		Short: "Decline acknowledgement with a reason",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				rec, err := e.DeclineAcknowledgement(ctx, args[0], actorID(), reason)
				if err != nil {
					return err
				}
				return printJSON(rec)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "decline reason")
	return cmd
}

func recRebuttalCmd() *cobra.Command {
	reb := &cobra.Command{Use: "rebuttal", Short: "Rebuttal sub-flow"}
	var rationale, evidence string
	submit := &cobra.Command{
		Use:   "submit <id>",
		Short: "Submit a rebuttal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				rec, err := e.SubmitRebuttal(ctx, args[0], actorID(), rationale, evidence)
				if err != nil {
					return err
				}
				return printJSON(rec)
			})
		},
	}
	submit.Flags().StringVar(&rationale, "rationale", "", "rebuttal rationale")
	submit.Flags().StringVar(&evidence, "evidence", "", "supporting evidence")
	reb.AddCommand(submit)

	var decision, comments string
	review := &cobra.Command{
		Use:   "review <id>",
		Short: "Review the current rebuttal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				rec, err := e.ReviewRebuttal(ctx, args[0], actorID(), decision, comments)
				if err != nil {
					return err
				}
				return printJSON(rec)
			})
		},
	}
	review.Flags().StringVar(&decision, "decision", "", "accept or override")
	review.Flags().StringVar(&comments, "comments", "", "review comments")
	reb.AddCommand(review)

	list := &cobra.Command{
		Use:   "list <id>",
		Short: "List rebuttal versions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				items, err := e.Rebuttals(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(items)
			})
		},
	}
	reb.AddCommand(list)
	return reb
}

func recPlanCmd() *cobra.Command {
	plan := &cobra.Command{Use: "plan", Short: "Action plan sub-flow"}

	var tasksJSON string
	submit := &cobra.Command{
		Use:   "submit <id>",
		Short: "Submit the action plan (ordered JSON task list)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var drafts []workflow.TaskDraft
			if err := json.Unmarshal([]byte(tasksJSON), &drafts); err != nil {
				return fmt.Errorf("parse --tasks: %w", err)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				rec, tasks, err := e.SubmitActionPlan(ctx, args[0], actorID(), drafts)
				if err != nil {
					return err
				}
				return printJSON(map[string]any{"recommendation": rec, "tasks": tasks})
			})
		},
	}
	submit.Flags().StringVar(&tasksJSON, "tasks", "[]", `JSON array: [{"Description":...,"OwnerID":...,"TargetDate":...}]`)
	plan.AddCommand(submit)

	var comments string
	approve := &cobra.Command{
		Use:   "approve <id>",
		Short: "Approve the action plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				rec, err := e.ApproveActionPlan(ctx, args[0], actorID(), comments)
				if err != nil {
					return err
				}
				return printJSON(rec)
			})
		},
	}
	approve.Flags().StringVar(&comments, "comments", "", "review comments")
	plan.AddCommand(approve)

	var feedback string
	reject := &cobra.Command{
		Use:   "reject <id>",
		Short: "Reject the action plan with feedback",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				rec, err := e.RejectActionPlan(ctx, args[0], actorID(), feedback)
				if err != nil {
					return err
				}
				return printJSON(rec)
			})
		},
	}
	reject.Flags().StringVar(&feedback, "feedback", "", "rework feedback")
	plan.AddCommand(reject)
	return plan
}

func recClosureCmd() *cobra.Command {
	closure := &cobra.Command{Use: "closure", Short: "Closure review sub-flow"}

	var summary string
	submit := &cobra.Command{
		Use:   "submit <id>",
		Short: "Submit for closure review",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				rec, err := e.SubmitForClosureReview(ctx, args[0], actorID(), summary)
				if err != nil {
					return err
				}
				return printJSON(rec)
			})
		},
	}
	submit.Flags().StringVar(&summary, "summary", "", "closure summary")
	closure.AddCommand(submit)

	var comments string
	approve := &cobra.Command{
		Use:   "approve <id>",
		Short: "Approve closure review (closes or enters approval phase)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				rec, err := e.ApproveClosureReview(ctx, args[0], actorID(), comments)
				if err != nil {
					return err
				}
				return printJSON(rec)
			})
		},
	}
	approve.Flags().StringVar(&comments, "comments", "", "review comments")
	closure.AddCommand(approve)

	var feedback string
	reject := &cobra.Command{
		Use:   "reject <id>",
		Short: "Reject closure review with feedback",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				rec, err := e.RejectClosureReview(ctx, args[0], actorID(), feedback)
				if err != nil {
					return err
				}
				return printJSON(rec)
			})
		},
	}
	reject.Flags().StringVar(&feedback, "feedback", "", "rework feedback")
	closure.AddCommand(reject)
	return closure
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{Use: "task", Short: "Manage action plan tasks"}

	list := &cobra.Command{
		Use:   "list <recommendation-id>",
		Short: "List tasks in order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				items, err := e.Tasks(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"#", "ID", "Description", "Owner", "Target", "Completed"})
				for _, t := range items {
					done := ""
					if t.CompletedDate != nil {
						done = *t.CompletedDate
					}
					tw.AppendRow(table.Row{t.TaskOrder, t.ID, t.Description, t.OwnerID, t.TargetDate, done})
				}
				tw.Render()
				return nil
			})
		},
	}
	task.AddCommand(list)

	var completedDate, completionStatus, notes string
	update := &cobra.Command{
		Use:   "update <task-id>",
		Short: "Update completion tracking on one task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			patch := workflow.TaskPatch{ActorID: actorID()}
			if cmd.Flags().Changed("completed-date") {
				patch.CompletedDate = &completedDate
			}
			if cmd.Flags().Changed("completion-status") {
				patch.CompletionStatusID = &completionStatus
			}
			if cmd.Flags().Changed("notes") {
				patch.CompletionNotes = &notes
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				t, err := e.UpdateTask(ctx, args[0], patch)
				if err != nil {
					return err
				}
				return printJSON(t)
			})
		},
	}
	update.Flags().StringVar(&completedDate, "completed-date", "", "completion date (RFC3339)")
	update.Flags().StringVar(&completionStatus, "completion-status", "", "completion status id")
	update.Flags().StringVar(&notes, "notes", "", "completion notes")
	task.AddCommand(update)
	return task
}

func approvalCmd() *cobra.Command {
	appr := &cobra.Command{Use: "approval", Short: "Manage the approval set"}

	list := &cobra.Command{
		Use:   "list <recommendation-id>",
		Short: "List approval slots",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				items, err := e.Approvals(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Type", "Region", "Status", "Approver"})
				for _, a := range items {
					region, approver := "", ""
					if a.RegionID != nil {
						region = *a.RegionID
					}
					if a.ApproverID != nil {
						approver = *a.ApproverID
					}
					tw.AppendRow(table.Row{a.ID, a.ApprovalType, region, a.Status, approver})
				}
				tw.Render()
				return nil
			})
		},
	}
	appr.AddCommand(list)

	var decision, comments, evidence string
	decide := &cobra.Command{
		Use:   "decide <approval-id>",
		Short: "Decide one approval slot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				ap, rec, err := e.SubmitApproval(ctx, args[0], actorID(), decision, comments, evidence)
				if err != nil {
					return err
				}
				return printJSON(map[string]any{"approval": ap, "recommendation": rec})
			})
		},
	}
	decide.Flags().StringVar(&decision, "decision", "", "approve or reject")
	decide.Flags().StringVar(&comments, "comments", "", "decision comments")
	decide.Flags().StringVar(&evidence, "evidence", "", "decision evidence")
	appr.AddCommand(decide)

	var reason string
	void := &cobra.Command{
		Use:   "void <approval-id>",
		Short: "Admin: reset a decided slot back to pending",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				ap, err := e.VoidApproval(ctx, args[0], actorID(), reason)
				if err != nil {
					return err
				}
				return printJSON(ap)
			})
		},
	}
	void.Flags().StringVar(&reason, "reason", "", "void reason")
	appr.AddCommand(void)
	return appr
}

func evidenceCmd() *cobra.Command {
	ev := &cobra.Command{Use: "evidence", Short: "Closure evidence"}

	var description, url string
	add := &cobra.Command{
		Use:   "add <recommendation-id>",
		Short: "Attach closure evidence",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				ev, err := e.AddClosureEvidence(ctx, args[0], actorID(), description, url)
				if err != nil {
					return err
				}
				return printJSON(ev)
			})
		},
	}
	add.Flags().StringVar(&description, "description", "", "evidence description")
	add.Flags().StringVar(&url, "url", "", "evidence URL")
	ev.AddCommand(add)

	ev.AddCommand(&cobra.Command{
		Use:   "list <recommendation-id>",
		Short: "List closure evidence",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				items, err := e.Evidence(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(items)
			})
		},
	})

	ev.AddCommand(&cobra.Command{
		Use:   "delete <evidence-id>",
		Short: "Delete closure evidence",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				return e.DeleteClosureEvidence(ctx, args[0], actorID())
			})
		},
	})
	return ev
}

func priorityCmd() *cobra.Command {
	pr := &cobra.Command{Use: "priority", Short: "Priority configuration"}

	pr.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List priority configs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				items, err := e.ListPriorityConfigs(ctx)
				if err != nil {
					return err
				}
				return printJSON(items)
			})
		},
	})

	var requires bool
	var description string
	set := &cobra.Command{
		Use:   "set <priority-id>",
		Short: "Admin: update one priority config",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				pc, err := e.UpdatePriorityConfig(ctx, actorID(), domain.PriorityConfig{
					PriorityID:            args[0],
					RequiresFinalApproval: requires,
					Description:           description,
				})
				if err != nil {
					return err
				}
				return printJSON(pc)
			})
		},
	}
	set.Flags().BoolVar(&requires, "requires-final-approval", false, "closure gated on the approval fan-out")
	set.Flags().StringVar(&description, "description", "", "free-text description")
	pr.AddCommand(set)
	return pr
}

func regionCmd() *cobra.Command {
	rg := &cobra.Command{Use: "region", Short: "Model/region registry"}

	rg.AddCommand(&cobra.Command{
		Use:   "list <model-id>",
		Short: "List registry entries for one model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				items, err := e.ListModelRegions(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(items)
			})
		},
	})

	var requires bool
	set := &cobra.Command{
		Use:   "set <model-id> <region-id>",
		Short: "Admin: register a model/region ownership",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				return e.UpsertModelRegion(ctx, actorID(), domain.ModelRegion{
					ModelID:                  args[0],
					RegionID:                 args[1],
					RequiresRegionalApproval: requires,
				})
			})
		},
	}
	set.Flags().BoolVar(&requires, "requires-regional-approval", false, "region requires its own sign-off")
	rg.AddCommand(set)

	rg.AddCommand(&cobra.Command{
		Use:   "delete <model-id> <region-id>",
		Short: "Admin: remove a model/region entry",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				return e.DeleteModelRegion(ctx, actorID(), args[0], args[1])
			})
		},
	})
	return rg
}

func rbacCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "rbac", Short: "RBAC management"}

	var role string
	grant := &cobra.Command{
		Use:   "grant-role <actor-id>",
		Short: "Admin: grant a role",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				return e.GrantRole(ctx, actorID(), args[0], role)
			})
		},
	}
	grant.Flags().StringVar(&role, "role", "", "admin, validator, or global_approver")
	cmd.AddCommand(grant)

	revoke := &cobra.Command{
		Use:   "revoke-role <actor-id>",
		Short: "Admin: revoke a role",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				return e.RevokeRole(ctx, actorID(), args[0], role)
			})
		},
	}
	revoke.Flags().StringVar(&role, "role", "", "role to revoke")
	cmd.AddCommand(revoke)

	var region string
	grantRegion := &cobra.Command{
		Use:   "grant-region <actor-id>",
		Short: "Admin: mark an actor as regional approver",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				return e.GrantRegionApprover(ctx, actorID(), args[0], region)
			})
		},
	}
	grantRegion.Flags().StringVar(&region, "region", "", "region id")
	cmd.AddCommand(grantRegion)

	var keyName string
	apikey := &cobra.Command{
		Use:   "apikey-create <actor-id>",
		Short: "Admin: mint an API key for an actor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				k, plaintext, err := e.CreateAPIKey(ctx, actorID(), args[0], keyName)
				if err != nil {
					return err
				}
				return printJSON(map[string]any{"id": k.ID, "actor_id": k.ActorID, "key": plaintext})
			})
		},
	}
	apikey.Flags().StringVar(&keyName, "name", "", "key label")
	cmd.AddCommand(apikey)

	cmd.AddCommand(&cobra.Command{
		Use:   "apikey-list <actor-id>",
		Short: "Admin: list an actor's API keys",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				keys, err := e.ListAPIKeys(ctx, actorID(), args[0])
				if err != nil {
					return err
				}
				return printJSON(keys)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "apikey-delete <key-id>",
		Short: "Admin: revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				return e.DeleteAPIKey(ctx, actorID(), args[0])
			})
		},
	})
	return cmd
}

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "history", Short: "Audit trail"}
	cmd.AddCommand(&cobra.Command{
		Use:   "show <recommendation-id>",
		Short: "Show the audit timeline, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				items, err := e.Timeline(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"At", "From", "To", "By", "Reason"})
				for _, h := range items {
					from, reason := "", ""
					if h.OldStatus != nil {
						from = *h.OldStatus
					}
					if h.Reason != nil {
						reason = *h.Reason
					}
					tw.AppendRow(table.Row{h.ChangedAt, from, h.NewStatus, h.ChangedByID, reason})
				}
				tw.Render()
				return nil
			})
		},
	})
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			cfg, err := config.LoadOptional(workspace)
			if err != nil {
				return err
			}
			if cfg == nil {
				cfg = config.Default()
			}
			conn, err := app.Bootstrap(cmd.Context(), workspace, cfg)
			if err != nil {
				return err
			}
			defer conn.Close()
			e := workflow.New(conn, cfg)
			authCfg := server.AuthConfig{
				JWTSecret:              cfg.Auth.JWTSecret,
				AllowLegacyActorHeader: cfg.Auth.AllowLegacyActorHeader,
				DevLogin:               cfg.Auth.DevLogin,
			}
			if secret := os.Getenv("REMWORK_JWT_SECRET"); secret != "" {
				authCfg.JWTSecret = secret
			}
			if authCfg.JWTSecret == "" && !authCfg.AllowLegacyActorHeader {
				return fmt.Errorf("set auth.jwt_secret (or REMWORK_JWT_SECRET) or enable auth.allow_legacy_actor_header")
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Remwork API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8787", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	return cmd
}
