package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"sntplan/internal/app"
	"sntplan/internal/config"
	"sntplan/internal/costing"
	"sntplan/internal/db"
	"sntplan/internal/domain"
	"sntplan/internal/engine"
	"sntplan/internal/forecast"
	"sntplan/internal/migrate"
	"sntplan/internal/repo"
	"sntplan/internal/server"
	"sntplan/internal/stratify"
	"sntplan/internal/tailoring"
	"sntplan/internal/workflow"
)

var rootCmd = &cobra.Command{
	Use:   "snt",
	Short: "Subnational tailoring CLI",
	Long: `snt drives a national malaria program's subnational tailoring cycle.
Core concepts:
- Workspace: your .sntplan directory holding the database and generated reports.
- Project: one planning cycle for one country, owning all data and analyses.
- Workflow: ten ordered steps from planning to monitoring evaluation; steps
  unlock as their blocking prerequisites complete.
- Data sources: registered epidemiological, intervention, demographic and other
  datasets, scored by automated quality checks.
- Stratification: admin units banded into risk levels from PfPR, incidence or
  EIR thresholds, each band mapped to eligible interventions.
- Scenarios: intervention mixes per risk level, costed against unit populations
  and optionally optimized under a budget.
- Forecasts: projected cases, deaths and prevalence per scenario.
- Plans: per-unit tailoring decisions for a chosen intervention.
- Event log: diary of changes, view with 'snt log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
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
	viper.SetEnvPrefix("SNTPLAN")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("project", "", "project id (overrides config default)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("project", rootCmd.PersistentFlags().Lookup("project"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(workflowCmd())
	rootCmd.AddCommand(dataCmd())
	rootCmd.AddCommand(stratCmd())
	rootCmd.AddCommand(scenarioCmd())
	rootCmd.AddCommand(forecastCmd())
	rootCmd.AddCommand(tailoringCmd())
	rootCmd.AddCommand(planCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func initCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			dir, err := db.EnsureWorkspace(workspace)
			if err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			fmt.Printf("Initialized workspace at %s\n", dir)
			return nil
		},
	}
	return cmd
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectUpdateCmd())
	prj.AddCommand(projectArchiveCmd())
	prj.AddCommand(projectRestoreCmd())
	prj.AddCommand(projectMemberCmd())
	prj.AddCommand(projectConfigCmd())
	prj.AddCommand(projectUseCmd())
	return prj
}

func projectListCmd() *cobra.Command {
	var includeArchived bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListProjects(ctx, includeArchived)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Country", "Year", "Status", "Archived"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.Name, p.Country, p.Year, p.Status, p.IsArchived})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&includeArchived, "include-archived", false, "include archived projects")
	return cmd
}

func projectCreateCmd() *cobra.Command {
	var opts engine.ProjectCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create project",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg := config.Default(opts.ID)
			e := engine.New(conn, cfg)
			e.Workspace = workspace
			p, err := e.CreateProject(cmd.Context(), opts)
			if err != nil {
				return err
			}
			if err := e.Repo.UpsertProjectConfig(cmd.Context(), p.ID, cfg); err != nil {
				return err
			}
			return printJSONOrTable(p)
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "project id (optional, UUID if omitted)")
	cmd.Flags().StringVar(&opts.Name, "name", "", "project name")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringVar(&opts.Country, "country", "", "country name")
	cmd.Flags().IntVar(&opts.AdminLevel, "admin-level", 1, "admin level for planning units (0-4)")
	cmd.Flags().IntVar(&opts.Year, "year", 0, "planning year")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("country")
	return cmd
}

func projectShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.Repo.GetProject(ctx, e.Config.Project.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	return cmd
}

func projectUpdateCmd() *cobra.Command {
	var name, description, status string
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				opts := engine.ProjectUpdateOptions{
					ID:      e.Config.Project.ID,
					ActorID: viper.GetString("actor-id"),
				}
				if cmd.Flags().Changed("name") {
					opts.Name = &name
				}
				if cmd.Flags().Changed("description") {
					opts.Description = &description
				}
				if cmd.Flags().Changed("status") {
					opts.Status = &status
				}
				p, err := e.UpdateProject(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "project name")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringVar(&status, "status", "", "status (active, completed)")
	return cmd
}

func projectArchiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Archive a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.ArchiveProject(ctx, e.Config.Project.ID, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	return cmd
}

func projectRestoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Restore an archived project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.RestoreProject(ctx, e.Config.Project.ID, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	return cmd
}

func projectMemberCmd() *cobra.Command {
	member := &cobra.Command{Use: "member", Short: "Manage project members"}
	var actor, role string
	add := &cobra.Command{
		Use:   "add",
		Short: "Add a member",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.AddMember(ctx, e.Config.Project.ID, actor, role, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	add.Flags().StringVar(&actor, "actor", "", "actor id")
	add.Flags().StringVar(&role, "role", domain.RoleAnalyst, "role (owner, manager, analyst, viewer)")
	_ = add.MarkFlagRequired("actor")
	list := &cobra.Command{
		Use:   "list",
		Short: "List members",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListMembers(ctx, e.Config.Project.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	member.AddCommand(add, list)
	return member
}

func projectUseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "use <id>",
		Short: "Set current project for this workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			projectID := strings.TrimSpace(args[0])
			if projectID == "" {
				return fmt.Errorf("project id is required")
			}
			workspace := viper.GetString("workspace")
			if err := setEnvValue(filepath.Join(workspace, ".env"), "SNTPLAN_DEFAULT_PROJECT", projectID); err != nil {
				return err
			}
			fmt.Printf("Set SNTPLAN_DEFAULT_PROJECT=%s in %s/.env\n", projectID, workspace)
			return nil
		},
	}
	return cmd
}

func projectConfigCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Manage project config",
	}
	cfg.AddCommand(projectConfigShowCmd())
	cfg.AddCommand(projectConfigImportCmd())
	cfg.AddCommand(projectConfigValidateCmd())
	return cfg
}

func projectConfigShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show project config stored in DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printJSONOrTable(e.Config)
			})
		},
	}
	return cmd
}

func projectConfigImportCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import project config from YAML into the DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(filePath)
			if err != nil {
				return err
			}
			cfg, err := config.FromYAML(data)
			if err != nil {
				return err
			}
			projectID := cfg.Project.ID
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if projectID == "" {
					projectID = e.Config.Project.ID
				}
				if err := e.Repo.UpsertProjectConfig(ctx, projectID, cfg); err != nil {
					return err
				}
				return printJSONOrTable(cfg)
			})
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to YAML config")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func projectConfigValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate stored config",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.Config.Validate()
			})
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
	return cmd
}

func statusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show project status",
		Long:  "See the scoreboard for your project: overall workflow progress, the current step, and each step's state.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.Repo.GetProject(ctx, e.Config.Project.ID)
				if err != nil {
					return err
				}
				wf, err := e.GetWorkflow(ctx, p.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{
						"project":  p,
						"workflow": wf,
					})
				}
				fmt.Printf("Project: %s (%s, %d) status=%s progress=%.0f%%\n", p.Name, p.Country, p.Year, p.Status, wf.OverallProgress)
				if wf.CurrentStep != nil {
					fmt.Printf("Current step: %s\n", *wf.CurrentStep)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Step", "Status", "Completion", "Accessible"})
				for _, s := range wf.Steps {
					tw.AppendRow(table.Row{s.Step, s.Status, fmt.Sprintf("%.0f%%", s.Completion), s.IsAccessible})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func workflowCmd() *cobra.Command {
	wf := &cobra.Command{
		Use:   "workflow",
		Short: "Manage workflow steps",
		Long:  "The ten-step tailoring ladder. Steps are updated and completed in order; blocking prerequisites gate access, and reopening a completed step reopens its direct dependents.",
	}
	wf.AddCommand(workflowShowCmd())
	wf.AddCommand(workflowUpdateCmd())
	wf.AddCommand(workflowValidateCmd())
	wf.AddCommand(workflowCompleteCmd())
	wf.AddCommand(workflowReopenCmd())
	return wf
}

func workflowShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <step>",
		Short: "Show one workflow step",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				sv, err := e.GetStep(ctx, e.Config.Project.ID, workflow.Step(args[0]))
				if err != nil {
					return err
				}
				return printJSONOrTable(sv)
			})
		},
	}
	return cmd
}

func workflowUpdateCmd() *cobra.Command {
	var notes, dataJSON string
	var completion float64
	cmd := &cobra.Command{
		Use:   "update <step>",
		Short: "Update a workflow step",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.StepUpdateOptions{ActorID: viper.GetString("actor-id")}
			if cmd.Flags().Changed("notes") {
				opts.Notes = &notes
			}
			if cmd.Flags().Changed("completion") {
				opts.Completion = &completion
			}
			if dataJSON != "" {
				var data map[string]any
				if err := json.Unmarshal([]byte(dataJSON), &data); err != nil {
					return fmt.Errorf("invalid --data-json: %w", err)
				}
				opts.Data = data
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				sv, err := e.UpdateStep(ctx, e.Config.Project.ID, workflow.Step(args[0]), opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(sv)
			})
		},
	}
	cmd.Flags().StringVar(&notes, "notes", "", "step notes")
	cmd.Flags().Float64Var(&completion, "completion", 0, "completion percentage (0-100)")
	cmd.Flags().StringVar(&dataJSON, "data-json", "", "step data JSON")
	return cmd
}

func workflowValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <step>",
		Short: "Validate a workflow step",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				v, err := e.ValidateStep(ctx, e.Config.Project.ID, workflow.Step(args[0]))
				if err != nil {
					return err
				}
				return printJSONOrTable(v)
			})
		},
	}
	return cmd
}

func workflowCompleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "complete <step>",
		Short: "Complete a workflow step",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				sv, err := e.CompleteStep(ctx, e.Config.Project.ID, workflow.Step(args[0]), viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(sv)
			})
		},
	}
	return cmd
}

func workflowReopenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reopen <step>",
		Short: "Reopen a completed step",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				sv, err := e.ReopenStep(ctx, e.Config.Project.ID, workflow.Step(args[0]), viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(sv)
			})
		},
	}
	return cmd
}

func dataCmd() *cobra.Command {
	data := &cobra.Command{
		Use:   "data",
		Short: "Manage data sources",
		Long:  "Registered datasets feeding the analysis. Quality checks score completeness, consistency, outliers and temporal gaps per source.",
	}
	data.AddCommand(dataRegisterCmd())
	data.AddCommand(dataListCmd())
	data.AddCommand(dataQualityCmd())
	data.AddCommand(dataReportCmd())
	data.AddCommand(dataDeleteCmd())
	return data
}

func dataRegisterCmd() *cobra.Command {
	var opts engine.DataSourceCreateOptions
	var csvPath string
	var yearStart, yearEnd int
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a data source",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			if cmd.Flags().Changed("year-start") {
				opts.YearStart = &yearStart
			}
			if cmd.Flags().Changed("year-end") {
				opts.YearEnd = &yearEnd
			}
			if csvPath != "" {
				raw, err := os.ReadFile(csvPath)
				if err != nil {
					return err
				}
				opts.CSV = raw
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				opts.ProjectID = e.Config.Project.ID
				ds, err := e.RegisterDataSource(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(ds)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Name, "name", "", "data source name")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringVar(&opts.SourceType, "type", "", "source type (epidemiological, intervention, demographic, geospatial, entomological, commodities)")
	cmd.Flags().StringVar(&opts.FileFormat, "format", "csv", "file format")
	cmd.Flags().IntVar(&yearStart, "year-start", 0, "first year covered")
	cmd.Flags().IntVar(&yearEnd, "year-end", 0, "last year covered")
	cmd.Flags().StringVar(&csvPath, "csv", "", "CSV file to check on registration")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func dataListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List data sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListDataSources(ctx, e.Config.Project.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Type", "Quality"})
				for _, ds := range items {
					score := ""
					if ds.QualityScore != nil {
						score = fmt.Sprintf("%.2f", *ds.QualityScore)
					}
					tw.AppendRow(table.Row{ds.ID, ds.Name, ds.SourceType, score})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func dataQualityCmd() *cobra.Command {
	var csvPath string
	cmd := &cobra.Command{
		Use:   "quality <data-source-id>",
		Short: "Run quality checks on a CSV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(csvPath)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rep, err := e.RunQualityChecks(ctx, args[0], raw, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(rep)
			})
		},
	}
	cmd.Flags().StringVar(&csvPath, "csv", "", "CSV file to check")
	_ = cmd.MarkFlagRequired("csv")
	return cmd
}

func dataReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report <data-source-id>",
		Short: "Show stored quality report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rep, err := e.GetQualityReport(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(rep)
			})
		},
	}
	return cmd
}

func dataDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <data-source-id>",
		Short: "Delete a data source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteDataSource(ctx, args[0], viper.GetString("actor-id"))
			})
		},
	}
	return cmd
}

func stratCmd() *cobra.Command {
	strat := &cobra.Command{
		Use:   "strat",
		Short: "Risk stratification",
		Long:  "Band admin units into risk levels by PfPR, incidence or EIR thresholds and map each band to its eligible interventions.",
	}
	strat.AddCommand(stratCreateCmd())
	strat.AddCommand(stratListCmd())
	strat.AddCommand(stratCalculateCmd())
	strat.AddCommand(stratResultsCmd())
	strat.AddCommand(stratSummaryCmd())
	strat.AddCommand(stratGeoJSONCmd())
	return strat
}

func stratCreateCmd() *cobra.Command {
	var name, metric, thresholdsJSON string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a stratification config",
		RunE: func(cmd *cobra.Command, args []string) error {
			var thresholds stratify.Thresholds
			if thresholdsJSON != "" {
				if err := json.Unmarshal([]byte(thresholdsJSON), &thresholds); err != nil {
					return fmt.Errorf("invalid --thresholds-json: %w", err)
				}
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.CreateStratConfig(ctx, engine.StratConfigCreateOptions{
					ProjectID:  e.Config.Project.ID,
					Name:       name,
					Metric:     metric,
					Thresholds: thresholds,
					ActorID:    viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "config name")
	cmd.Flags().StringVar(&metric, "metric", "pfpr", "metric (pfpr, incidence, eir)")
	cmd.Flags().StringVar(&thresholdsJSON, "thresholds-json", "", "risk band thresholds JSON (defaults per metric)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func stratListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stratification configs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListStratConfigs(ctx, e.Config.Project.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

func stratCalculateCmd() *cobra.Command {
	var unitsPath string
	cmd := &cobra.Command{
		Use:   "calculate <config-id>",
		Short: "Stratify admin units from a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(unitsPath)
			if err != nil {
				return err
			}
			var units []stratify.UnitInput
			if err := json.Unmarshal(raw, &units); err != nil {
				return fmt.Errorf("invalid units file: %w", err)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				results, err := e.CalculateStratification(ctx, args[0], units, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(results)
			})
		},
	}
	cmd.Flags().StringVar(&unitsPath, "units", "", "JSON file with admin unit inputs")
	_ = cmd.MarkFlagRequired("units")
	return cmd
}

func stratResultsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "results <config-id>",
		Short: "Show stratification results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				results, err := e.Repo.ListStratResults(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(results)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Unit", "Value", "Risk", "Population"})
				for _, r := range results {
					pop := ""
					if r.Population != nil {
						pop = fmt.Sprintf("%d", *r.Population)
					}
					tw.AppendRow(table.Row{r.AdminUnitName, r.MetricValue, r.RiskLevel, pop})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func stratSummaryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summary <config-id>",
		Short: "Stratification summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				sum, err := e.StratificationSummary(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(sum)
			})
		},
	}
	return cmd
}

func stratGeoJSONCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "geojson <config-id>",
		Short: "Export results as a GeoJSON feature collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				fc, err := e.StratificationGeoJSON(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(fc)
			})
		},
	}
	return cmd
}

func scenarioCmd() *cobra.Command {
	sc := &cobra.Command{
		Use:   "scenario",
		Short: "Intervention scenarios",
		Long:  "Scenarios assign intervention mixes to risk levels, get costed against unit populations, and can be trimmed to fit a budget.",
	}
	sc.AddCommand(scenarioCreateCmd())
	sc.AddCommand(scenarioListCmd())
	sc.AddCommand(scenarioCostCmd())
	sc.AddCommand(scenarioOptimizeCmd())
	sc.AddCommand(scenarioCompareCmd())
	sc.AddCommand(scenarioDeleteCmd())
	return sc
}

func scenarioCreateCmd() *cobra.Command {
	var opts engine.ScenarioCreateOptions
	var interventionsJSON string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a scenario",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			if interventionsJSON != "" {
				if err := json.Unmarshal([]byte(interventionsJSON), &opts.Interventions); err != nil {
					return fmt.Errorf("invalid --interventions-json: %w", err)
				}
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				opts.ProjectID = e.Config.Project.ID
				s, err := e.CreateScenario(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Name, "name", "", "scenario name")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringVar(&opts.ScenarioType, "type", "custom", "type (ideal, prioritized, budget_constrained, custom)")
	cmd.Flags().StringVar(&interventionsJSON, "interventions-json", "", "risk level to intervention codes JSON")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func scenarioListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List scenarios",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListScenarios(ctx, e.Config.Project.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Type", "Selected", "Total Cost"})
				for _, s := range items {
					cost := ""
					if s.TotalCost != nil {
						cost = fmt.Sprintf("%.2f", *s.TotalCost)
					}
					tw.AppendRow(table.Row{s.ID, s.Name, s.ScenarioType, s.IsSelected, cost})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func scenarioCostCmd() *cobra.Command {
	var populationsPath, unitCostsJSON string
	var years int
	cmd := &cobra.Command{
		Use:   "cost <scenario-id>",
		Short: "Cost a scenario",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			populations, err := readPopulations(populationsPath)
			if err != nil {
				return err
			}
			var overrides costing.UnitCosts
			if unitCostsJSON != "" {
				if err := json.Unmarshal([]byte(unitCostsJSON), &overrides); err != nil {
					return fmt.Errorf("invalid --unit-costs-json: %w", err)
				}
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				sum, err := e.CalculateScenarioCost(ctx, args[0], populations, overrides, years, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(sum)
			})
		},
	}
	cmd.Flags().StringVar(&populationsPath, "populations", "", "JSON file of unit populations")
	cmd.Flags().StringVar(&unitCostsJSON, "unit-costs-json", "", "unit cost overrides JSON")
	cmd.Flags().IntVar(&years, "years", 0, "costing horizon in years (config default if 0)")
	_ = cmd.MarkFlagRequired("populations")
	return cmd
}

func scenarioOptimizeCmd() *cobra.Command {
	var populationsPath string
	var budget float64
	cmd := &cobra.Command{
		Use:   "optimize <scenario-id>",
		Short: "Trim a scenario to fit a budget",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			populations, err := readPopulations(populationsPath)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.OptimizeScenario(ctx, args[0], budget, populations, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	cmd.Flags().StringVar(&populationsPath, "populations", "", "JSON file of unit populations")
	cmd.Flags().Float64Var(&budget, "budget", 0, "budget ceiling")
	_ = cmd.MarkFlagRequired("populations")
	_ = cmd.MarkFlagRequired("budget")
	return cmd
}

func scenarioCompareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Compare all scenarios",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				cmp, err := e.CompareScenarios(ctx, e.Config.Project.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(cmp)
			})
		},
	}
	return cmd
}

func scenarioDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <scenario-id>",
		Short: "Delete a scenario",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteScenario(ctx, args[0], viper.GetString("actor-id"))
			})
		},
	}
	return cmd
}

func forecastCmd() *cobra.Command {
	fc := &cobra.Command{
		Use:   "forecast",
		Short: "Impact forecasts",
	}
	fc.AddCommand(forecastRunCmd())
	fc.AddCommand(forecastListCmd())
	fc.AddCommand(forecastCompareCmd())
	return fc
}

func forecastRunCmd() *cobra.Command {
	var modelType, baselineJSON string
	var years int
	cmd := &cobra.Command{
		Use:   "run <scenario-id>",
		Short: "Run a forecast for a scenario",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var baseline *forecast.Baseline
			if baselineJSON != "" {
				baseline = &forecast.Baseline{}
				if err := json.Unmarshal([]byte(baselineJSON), baseline); err != nil {
					return fmt.Errorf("invalid --baseline-json: %w", err)
				}
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				f, err := e.RunForecast(ctx, engine.ForecastRunOptions{
					ScenarioID: args[0],
					ModelType:  modelType,
					Years:      years,
					Baseline:   baseline,
					ActorID:    viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(f)
			})
		},
	}
	cmd.Flags().StringVar(&modelType, "model", "", "model type (simple by default)")
	cmd.Flags().IntVar(&years, "years", 0, "projection years (config default if 0)")
	cmd.Flags().StringVar(&baselineJSON, "baseline-json", "", "baseline burden JSON")
	return cmd
}

func forecastListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list <scenario-id>",
		Short: "List forecasts for a scenario",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListForecasts(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

func forecastCompareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Compare latest forecasts across scenarios",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				cmp, err := e.CompareForecasts(ctx, e.Config.Project.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(cmp)
			})
		},
	}
	return cmd
}

func tailoringCmd() *cobra.Command {
	tc := &cobra.Command{
		Use:   "tailoring",
		Short: "Intervention tailoring",
	}
	trees := &cobra.Command{
		Use:   "trees",
		Short: "List decision trees",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printJSONOrTable(tailoring.AllTrees())
		},
	}
	var code, riskLevel, contextJSON string
	recommend := &cobra.Command{
		Use:   "recommend",
		Short: "Recommendation for one unit",
		RunE: func(cmd *cobra.Command, args []string) error {
			var unitContext map[string]any
			if contextJSON != "" {
				if err := json.Unmarshal([]byte(contextJSON), &unitContext); err != nil {
					return fmt.Errorf("invalid --context-json: %w", err)
				}
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rec, err := e.Recommend(code, riskLevel, unitContext)
				if err != nil {
					return err
				}
				return printJSONOrTable(rec)
			})
		},
	}
	recommend.Flags().StringVar(&code, "intervention", "", "intervention code")
	recommend.Flags().StringVar(&riskLevel, "risk-level", "", "risk level (very_low, low, moderate, high)")
	recommend.Flags().StringVar(&contextJSON, "context-json", "", "unit context JSON")
	_ = recommend.MarkFlagRequired("intervention")
	_ = recommend.MarkFlagRequired("risk-level")
	tc.AddCommand(trees, recommend)
	return tc
}

func planCmd() *cobra.Command {
	pc := &cobra.Command{
		Use:   "plan",
		Short: "Intervention plans",
	}
	var opts engine.PlanCreateOptions
	var decisionsJSON string
	var coverage float64
	var targetPop int64
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an intervention plan",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			if decisionsJSON != "" {
				if err := json.Unmarshal([]byte(decisionsJSON), &opts.Decisions); err != nil {
					return fmt.Errorf("invalid --decisions-json: %w", err)
				}
			}
			if cmd.Flags().Changed("coverage") {
				opts.CoverageTarget = &coverage
			}
			if cmd.Flags().Changed("target-population") {
				opts.TargetPopulation = &targetPop
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				opts.ProjectID = e.Config.Project.ID
				p, err := e.CreatePlan(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	create.Flags().StringVar(&opts.AdminUnitName, "unit", "", "admin unit name")
	create.Flags().StringVar(&opts.AdminUnitCode, "unit-code", "", "admin unit code")
	create.Flags().StringVar(&opts.InterventionCode, "intervention", "", "intervention code")
	create.Flags().StringVar(&decisionsJSON, "decisions-json", "", "tailoring decisions JSON")
	create.Flags().Float64Var(&coverage, "coverage", 0, "coverage target percentage")
	create.Flags().StringVar(&opts.DeliveryStrategy, "delivery", "", "delivery strategy")
	create.Flags().Int64Var(&targetPop, "target-population", 0, "target population")
	create.Flags().StringVar(&opts.Notes, "notes", "", "notes")
	_ = create.MarkFlagRequired("unit")
	_ = create.MarkFlagRequired("intervention")
	list := &cobra.Command{
		Use:   "list",
		Short: "List intervention plans",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListPlans(ctx, e.Config.Project.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	del := &cobra.Command{
		Use:   "delete <plan-id>",
		Short: "Delete a plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeletePlan(ctx, args[0], viper.GetString("actor-id"))
			})
		},
	}
	pc.AddCommand(create, list, del)
	return pc
}

func reportCmd() *cobra.Command {
	rc := &cobra.Command{
		Use:   "report",
		Short: "Generate and list reports",
	}
	var title, reportType, format string
	generate := &cobra.Command{
		Use:   "generate",
		Short: "Generate a report file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rec, err := e.GenerateReport(ctx, engine.ReportGenerateOptions{
					ProjectID:  e.Config.Project.ID,
					Title:      title,
					ReportType: reportType,
					Format:     format,
					ActorID:    viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(rec)
			})
		},
	}
	generate.Flags().StringVar(&title, "title", "", "report title")
	generate.Flags().StringVar(&reportType, "type", "full_snt", "report type (full_snt, executive_summary, stratification, budget)")
	generate.Flags().StringVar(&format, "format", "json", "output format (json, csv)")
	list := &cobra.Command{
		Use:   "list",
		Short: "List generated reports",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListReports(ctx, e.Config.Project.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	rc.AddCommand(generate, list)
	return rc
}

func apikeyCmd() *cobra.Command {
	ak := &cobra.Command{
		Use:   "apikey",
		Short: "Manage API keys",
	}
	var name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an API key for the current actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw := make([]byte, 24)
			if _, err := rand.Read(raw); err != nil {
				return err
			}
			secret := "snt_" + hex.EncodeToString(raw)
			key := domain.APIKey{
				ID:        uuid.NewString(),
				ActorID:   viper.GetString("actor-id"),
				Name:      name,
				KeyHash:   repo.HashAPIKey(secret),
				CreatedAt: time.Now().UTC().Format(time.RFC3339),
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				tx, err := r.DB.BeginTx(ctx, nil)
				if err != nil {
					return err
				}
				defer tx.Rollback()
				if err := r.InsertAPIKey(ctx, tx, key); err != nil {
					return err
				}
				if err := tx.Commit(); err != nil {
					return err
				}
				// The secret is only printed once.
				return printJSONOrTable(map[string]string{
					"id":      key.ID,
					"api_key": secret,
				})
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "key label")
	list := &cobra.Command{
		Use:   "list",
		Short: "List API keys for the current actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListAPIKeys(ctx, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	revoke := &cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteAPIKey(ctx, args[0])
			})
		},
	}
	ak.AddCommand(create, list, revoke)
	return ak
}

func logCmd() *cobra.Command {
	lg := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "The diary of everything that happened: project changes, step completions, calculations, and more.",
	}
	lg.AddCommand(logTailCmd())
	return lg
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.Repo.LatestEvents(ctx, n, e.Config.Project.ID, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var allowLegacyActor bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			r := repo.Repo{DB: conn}
			_, cfg, err := app.ResolveProjectAndConfig(cmd.Context(), workspace, viper.GetString("project"), viper.GetString("actor-id"), r)
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			e.Workspace = workspace
			authCfg := server.AuthConfig{
				JWTSecret:              os.Getenv("SNTPLAN_JWT_SECRET"),
				AllowLegacyActorHeader: allowLegacyActor,
			}
			if authCfg.JWTSecret == "" && !allowLegacyActor {
				return fmt.Errorf("SNTPLAN_JWT_SECRET is required for bearer auth")
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
			fmt.Printf("Serving SNT planning API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	cmd.Flags().BoolVar(&allowLegacyActor, "allow-legacy-actor-header", false, "accept unauthenticated X-Actor-Id (local use only)")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	r := repo.Repo{DB: conn}
	_, cfg, err := app.ResolveProjectAndConfig(ctx, workspace, viper.GetString("project"), viper.GetString("actor-id"), r)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	e.Workspace = workspace
	return fn(ctx, e)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	r := repo.Repo{DB: conn}
	return fn(ctx, r)
}

func readPopulations(path string) ([]costing.PopulationUnit, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var populations []costing.PopulationUnit
	if err := json.Unmarshal(raw, &populations); err != nil {
		return nil, fmt.Errorf("invalid populations file: %w", err)
	}
	return populations, nil
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func setEnvValue(path, key, value string) error {
	var lines []string
	seen := false
	f, err := os.Open(path)
	if err == nil {
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := scanner.Text()
			if strings.HasPrefix(line, key+"=") {
				lines = append(lines, fmt.Sprintf("%s=%s", key, value))
				seen = true
			} else {
				lines = append(lines, line)
			}
		}
		if err := scanner.Err(); err != nil {
			f.Close()
			return err
		}
		f.Close()
	} else if !os.IsNotExist(err) {
		return err
	}
	if !seen {
		lines = append(lines, fmt.Sprintf("%s=%s", key, value))
	}
	content := strings.Join(lines, "\n")
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	return os.WriteFile(path, []byte(content), 0o644)
}
