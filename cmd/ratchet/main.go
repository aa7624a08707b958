package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/calebhart/ratchet/internal/artifacts"
	"github.com/calebhart/ratchet/internal/command"
	"github.com/calebhart/ratchet/internal/config"
	"github.com/calebhart/ratchet/internal/executor"
	"github.com/calebhart/ratchet/internal/models"
	"github.com/calebhart/ratchet/internal/prompts"
	"github.com/calebhart/ratchet/internal/storage"
	"github.com/calebhart/ratchet/internal/tui"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "ratchet",
		Short: "SDLC workflow orchestrator",
		Long:  "Ratchet runs YAML-defined development workflows with durable event and artifact tracking.",
		RunE:  runTUI,
	}

	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newListCommand())
	rootCmd.AddCommand(newDescribeCommand())
	rootCmd.AddCommand(newStatusCommand())
	rootCmd.AddCommand(newHistoryCommand())
	rootCmd.AddCommand(newCleanupCommand())
	rootCmd.AddCommand(newInitCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// env bundles the stores every subcommand opens.
type env struct {
	cfg       *config.Config
	store     *storage.Storage
	artifacts *artifacts.Store
}

func openEnv() (*env, error) {
	cfg, err := config.New()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	store, err := storage.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	artifactStore, err := artifacts.New(cfg.ArtifactsDir)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to open artifact store: %w", err)
	}

	return &env{cfg: cfg, store: store, artifacts: artifactStore}, nil
}

func (e *env) Close() {
	e.store.Close()
}

func runTUI(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	if _, err := e.store.ReconcileStale(e.cfg.StaleThreshold); err != nil {
		return err
	}

	app := tui.NewApp(e.store)
	p := tea.NewProgram(app, tea.WithAltScreen())

	_, err = p.Run()
	return err
}

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <command> [key=value...]",
		Short: "Run a workflow command",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, cmdArgs []string) error {
			commandName := cmdArgs[0]
			dryRun, _ := cmd.Flags().GetBool("dry-run")
			projectPath, _ := cmd.Flags().GetString("project")

			suppliedArgs, err := command.ParsePairs(cmdArgs[1:])
			if err != nil {
				return err
			}

			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.Close()

			loader := command.NewLoader(e.cfg.CommandDirs(projectPath))
			def, err := loader.Load(commandName)
			if err != nil {
				return err
			}

			resolved, err := command.ValidateArgs(def, suppliedArgs)
			if err != nil {
				return err
			}

			exec := executor.New(e.cfg, e.store, e.artifacts)
			exec.SetPromptAssembler(prompts.NewAssembler(e.store, e.artifacts, e.cfg.TemplateDirs(projectPath)))

			if dryRun {
				fmt.Print(exec.DryRun(def, projectPath, resolved))
				return nil
			}

			if _, err := e.store.ReconcileStale(e.cfg.StaleThreshold); err != nil {
				return err
			}

			fmt.Printf("Running %q on %s\n", def.Name, projectPath)
			result, execErr := exec.Execute(context.Background(), def, projectPath, resolved)
			if result != nil {
				fmt.Printf("Event #%d  session %s\n", result.EventID, result.SessionID)
				for _, step := range result.Steps {
					marker := "✓"
					if step.Status != executor.StepStatusCompleted {
						marker = "✗"
					}
					fmt.Printf("  %s %d. %s [%s] %s\n", marker, step.Index, step.Name, step.Status, step.Duration.Round(time.Millisecond))
				}
				fmt.Printf("Status: %s\n", result.Status)
				fmt.Printf("Artifacts: %s\n", result.ArtifactDir)
			}
			if execErr != nil {
				return fmt.Errorf("execution failed: %w", execErr)
			}
			return nil
		},
	}

	cmd.Flags().Bool("dry-run", false, "Print the execution plan without running")
	cmd.Flags().StringP("project", "p", ".", "Project directory")
	return cmd
}

func newListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List available workflow commands",
		RunE: func(cmd *cobra.Command, args []string) error {
			verbose, _ := cmd.Flags().GetBool("verbose")
			projectPath, _ := cmd.Flags().GetString("project")

			cfg, err := config.New()
			if err != nil {
				return err
			}

			loader := command.NewLoader(cfg.CommandDirs(projectPath))
			defs, err := loader.Discover()
			if err != nil {
				return err
			}

			if len(defs) == 0 {
				fmt.Println("No commands found. Run 'ratchet init' to scaffold a project.")
				return nil
			}

			byCategory := map[string][]*models.CommandDefinition{}
			for _, def := range defs {
				category := def.Category
				if category == "" {
					category = "general"
				}
				byCategory[category] = append(byCategory[category], def)
			}

			categories := make([]string, 0, len(byCategory))
			for c := range byCategory {
				categories = append(categories, c)
			}
			sort.Strings(categories)

			for _, category := range categories {
				fmt.Printf("%s:\n", category)
				for _, def := range byCategory[category] {
					fmt.Printf("  %-24s %s\n", def.Name, def.Description)
					if verbose {
						for _, arg := range def.Arguments {
							req := ""
							if arg.Required {
								req = " (required)"
							}
							fmt.Printf("    --%s%s  %s\n", arg.Name, req, arg.Description)
						}
					}
				}
			}

			if verbose {
				assembler := prompts.NewAssembler(nil, nil, cfg.TemplateDirs(projectPath))
				if templates := assembler.List(); len(templates) > 0 {
					fmt.Printf("\nprompt templates: %s\n", strings.Join(templates, ", "))
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolP("verbose", "v", false, "Show command arguments")
	cmd.Flags().StringP("project", "p", ".", "Project directory")
	return cmd
}

func newDescribeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "describe <command>",
		Short: "Show a command's full definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			projectPath, _ := cmd.Flags().GetString("project")

			cfg, err := config.New()
			if err != nil {
				return err
			}

			loader := command.NewLoader(cfg.CommandDirs(projectPath))
			def, err := loader.Load(args[0])
			if err != nil {
				return err
			}

			fmt.Printf("Command: %s\n", def.Name)
			fmt.Printf("Description: %s\n", def.Description)
			if def.Category != "" {
				fmt.Printf("Category: %s\n", def.Category)
			}
			if def.Extends != "" {
				fmt.Printf("Extends: %s\n", def.Extends)
			}
			if def.Timeout > 0 {
				fmt.Printf("Timeout: %ds\n", def.Timeout)
			}

			if len(def.Arguments) > 0 {
				fmt.Println("\nArguments:")
				for _, arg := range def.Arguments {
					attrs := []string{}
					if arg.Required {
						attrs = append(attrs, "required")
					}
					if arg.Type != "" {
						attrs = append(attrs, arg.Type)
					}
					if arg.Default != "" {
						attrs = append(attrs, "default: "+arg.Default)
					}
					suffix := ""
					if len(attrs) > 0 {
						suffix = " (" + strings.Join(attrs, ", ") + ")"
					}
					fmt.Printf("  %s%s  %s\n", arg.Name, suffix, arg.Description)
				}
			}

			if len(def.Environment) > 0 {
				fmt.Println("\nEnvironment:")
				keys := make([]string, 0, len(def.Environment))
				for k := range def.Environment {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				for _, k := range keys {
					fmt.Printf("  %s=%s\n", k, def.Environment[k])
				}
			}

			fmt.Println("\nSteps:")
			for i, step := range def.AllSteps() {
				fmt.Printf("  %d. %s\n", i+1, step)
			}

			if len(def.CleanupOnFailure) > 0 {
				fmt.Println("\nCleanup on failure:")
				for _, step := range def.CleanupOnFailure {
					fmt.Printf("  - %s\n", step)
				}
			}

			return nil
		},
	}

	cmd.Flags().StringP("project", "p", ".", "Project directory")
	return cmd
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show currently running events",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.Close()

			reclaimed, err := e.store.ReconcileStale(e.cfg.StaleThreshold)
			if err != nil {
				return err
			}
			if reclaimed > 0 {
				fmt.Printf("Reclassified %d stale event(s) as failed.\n\n", reclaimed)
			}

			events, err := e.store.RunningEvents()
			if err != nil {
				return err
			}

			if len(events) == 0 {
				fmt.Println("No running events.")
				return nil
			}

			for _, ev := range events {
				fmt.Printf("#%d %s [%s] started %s\n",
					ev.ID, ev.Command, ev.SessionID,
					ev.StartTime.Local().Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}
}

func newHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent events",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")

			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.Close()

			if _, err := e.store.ReconcileStale(e.cfg.StaleThreshold); err != nil {
				return err
			}

			events, err := e.store.RecentEvents(limit)
			if err != nil {
				return err
			}

			if len(events) == 0 {
				fmt.Println("No events recorded.")
				return nil
			}

			for _, ev := range events {
				duration := ""
				if ev.EndTime != nil {
					duration = ev.EndTime.Sub(ev.StartTime).Round(time.Second).String()
				}
				fmt.Printf("#%-4d %-20s [%-9s] %-8s %s\n",
					ev.ID, ev.Command, ev.Status, duration,
					ev.StartTime.Local().Format("2006-01-02 15:04"))
				if ev.ErrorMessage != "" {
					fmt.Printf("      %s\n", truncate(ev.ErrorMessage, 70))
				}
			}
			return nil
		},
	}

	cmd.Flags().Int("limit", 20, "Maximum number of events to show")
	return cmd
}

func newCleanupCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove artifact directories older than a threshold",
		RunE: func(cmd *cobra.Command, args []string) error {
			days, _ := cmd.Flags().GetInt("days")
			yes, _ := cmd.Flags().GetBool("yes")

			if days < 1 {
				return fmt.Errorf("--days must be at least 1")
			}

			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.Close()

			if !yes {
				fmt.Printf("Remove artifact directories older than %d day(s)? [y/N] ", days)
				reader := bufio.NewReader(os.Stdin)
				answer, _ := reader.ReadString('\n')
				answer = strings.ToLower(strings.TrimSpace(answer))
				if answer != "y" && answer != "yes" {
					fmt.Println("Aborted.")
					return nil
				}
			}

			removed, err := e.artifacts.CleanupOlderThan(time.Duration(days) * 24 * time.Hour)
			if err != nil {
				return err
			}

			fmt.Printf("Removed %d session director%s.\n", removed, pluralY(removed))
			fmt.Println("Event history is preserved; use the TUI to delete individual events.")
			return nil
		},
	}

	cmd.Flags().Int("days", 30, "Age threshold in days")
	cmd.Flags().BoolP("yes", "y", false, "Skip confirmation")
	return cmd
}

func newInitCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Scaffold .ratchet directories in the current project",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, dir := range []string{".ratchet/commands", ".ratchet/steps", ".ratchet/templates"} {
				if err := os.MkdirAll(dir, 0755); err != nil {
					return err
				}
			}

			starterPath := filepath.Join(".ratchet", "commands", "quick-task.yaml")
			if _, err := os.Stat(starterPath); os.IsNotExist(err) {
				if err := os.WriteFile(starterPath, []byte(starterCommand), 0644); err != nil {
					return err
				}
				fmt.Printf("Created %s\n", starterPath)
			}

			fmt.Println("Initialized .ratchet directories.")
			return nil
		},
	}
}

const starterCommand = `name: quick-task
description: Minimal workflow that sets up a session and assembles a task prompt
category: starter

arguments:
  - name: objective
    required: true
    description: What the task should accomplish
  - name: template
    default: task
    description: Prompt template to use

pre_steps:
  - setup-environment
  - validate-prerequisites

steps:
  - gather-context
  - assemble-prompt

post_steps:
  - store-artifacts
  - cleanup

cleanup_on_failure:
  - cleanup
`

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func pluralY(n int) string {
	if n == 1 {
		return "y"
	}
	return "ies"
}
