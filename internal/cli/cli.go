package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	internal_http "github.com/vlied266/work-manager-sub001/internal/http"
	"github.com/vlied266/work-manager-sub001/internal/log"
	internal_storage "github.com/vlied266/work-manager-sub001/internal/storage"
	"github.com/vlied266/work-manager-sub001/pkg/models"
	"github.com/vlied266/work-manager-sub001/pkg/service"
)

func SetupCLI(rootCmd *cobra.Command) {
	procedureCmd := &cobra.Command{
		Use:   "procedure",
		Short: "Author and inspect procedures",
	}

	procedureCreateCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a procedure from a YAML definition",
		Run: func(cmd *cobra.Command, args []string) {
			file, err := cmd.Flags().GetString("file")
			if err != nil || file == "" {
				fmt.Fprintln(os.Stderr, "Error: --file is required")
				os.Exit(1)
			}
			svc, cleanup := initService(cmd)
			defer cleanup()
			createProcedure(svc, file)
		},
	}
	procedureCreateCmd.Flags().StringP("file", "f", "", "Path to the procedure YAML file")

	procedureListCmd := &cobra.Command{
		Use:   "list",
		Short: "List procedures",
		Run: func(cmd *cobra.Command, args []string) {
			org, _ := cmd.Flags().GetString("org")
			svc, cleanup := initService(cmd)
			defer cleanup()
			listProcedures(svc, org)
		},
	}
	procedureListCmd.Flags().String("org", "", "Filter by organization ID")

	procedureCmd.AddCommand(procedureCreateCmd, procedureListCmd)

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Start and drive procedure runs",
	}

	runStartCmd := &cobra.Command{
		Use:   "start",
		Short: "Start a run of a procedure",
		Run: func(cmd *cobra.Command, args []string) {
			procedureID, _ := cmd.Flags().GetString("procedure")
			userID, _ := cmd.Flags().GetString("user")
			triggerRaw, _ := cmd.Flags().GetString("trigger")
			if procedureID == "" || userID == "" {
				fmt.Fprintln(os.Stderr, "Error: --procedure and --user are required")
				os.Exit(1)
			}
			var trigger map[string]any
			if triggerRaw != "" {
				if err := json.Unmarshal([]byte(triggerRaw), &trigger); err != nil {
					fmt.Fprintf(os.Stderr, "Error: invalid --trigger JSON: %v\n", err)
					os.Exit(1)
				}
			}
			svc, cleanup := initService(cmd)
			defer cleanup()
			startRun(svc, procedureID, userID, trigger)
		},
	}
	runStartCmd.Flags().String("procedure", "", "Procedure ID to run")
	runStartCmd.Flags().String("user", "", "User starting the run")
	runStartCmd.Flags().String("trigger", "", "Optional trigger payload as JSON")

	runListCmd := &cobra.Command{
		Use:   "list",
		Short: "List runs",
		Run: func(cmd *cobra.Command, args []string) {
			procedureID, _ := cmd.Flags().GetString("procedure")
			svc, cleanup := initService(cmd)
			defer cleanup()
			listRuns(svc, procedureID)
		},
	}
	runListCmd.Flags().String("procedure", "", "Filter by procedure ID")

	runCompleteCmd := &cobra.Command{
		Use:   "complete",
		Short: "Submit the current step of a run",
		Run: func(cmd *cobra.Command, args []string) {
			runID, _ := cmd.Flags().GetString("run")
			userID, _ := cmd.Flags().GetString("user")
			outputRaw, _ := cmd.Flags().GetString("output")
			outcome, _ := cmd.Flags().GetString("outcome")
			if runID == "" || userID == "" {
				fmt.Fprintln(os.Stderr, "Error: --run and --user are required")
				os.Exit(1)
			}
			svc, cleanup := initService(cmd)
			defer cleanup()
			completeStep(svc, runID, userID, outputRaw, outcome)
		},
	}
	runCompleteCmd.Flags().String("run", "", "Run ID")
	runCompleteCmd.Flags().String("user", "", "Submitting user")
	runCompleteCmd.Flags().String("output", "", "Step output, as JSON or a raw string")
	runCompleteCmd.Flags().String("outcome", string(models.SuccessOutcome), "Step outcome (SUCCESS, FAILURE or FLAGGED)")

	runClaimCmd := &cobra.Command{
		Use:   "claim",
		Short: "Claim a run waiting in a team queue",
		Run: func(cmd *cobra.Command, args []string) {
			runID, _ := cmd.Flags().GetString("run")
			userID, _ := cmd.Flags().GetString("user")
			if runID == "" || userID == "" {
				fmt.Fprintln(os.Stderr, "Error: --run and --user are required")
				os.Exit(1)
			}
			svc, cleanup := initService(cmd)
			defer cleanup()
			claimRun(svc, runID, userID)
		},
	}
	runClaimCmd.Flags().String("run", "", "Run ID")
	runClaimCmd.Flags().String("user", "", "Claiming user")

	runCmd.AddCommand(runStartCmd, runListCmd, runCompleteCmd, runClaimCmd)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Run: func(cmd *cobra.Command, args []string) {
			port, _ := cmd.Flags().GetString("port")
			dbConnStr, _ := cmd.Flags().GetString("db")
			store := initStore(dbConnStr)
			defer store.Close()
			if err := internal_http.StartServer(context.Background(), port, store); err != nil {
				log.GetLogger().Errorf("Server stopped: %v", err)
				os.Exit(1)
			}
		},
	}
	serveCmd.Flags().String("port", "8080", "Port to listen on")

	rootCmd.AddCommand(procedureCmd, runCmd, serveCmd)
	rootCmd.PersistentFlags().String("db", "", "Database connection string")
}

func createProcedure(svc *service.RunService, file string) {
	raw, err := os.ReadFile(file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to read %s: %v\n", file, err)
		os.Exit(1)
	}
	var proc models.Procedure
	if err := yaml.Unmarshal(raw, &proc); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to parse %s: %v\n", file, err)
		os.Exit(1)
	}
	id, err := svc.CreateProcedure(proc)
	if err != nil {
		log.GetLogger().Errorf("Failed to create procedure: %v", err)
		fmt.Fprintf(os.Stderr, "Error: failed to create procedure: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stdout, "Created procedure '%s' with ID %s\n", proc.Title, id)
}

func listProcedures(svc *service.RunService, orgID string) {
	procs, err := svc.ListProcedures(orgID)
	if err != nil {
		log.GetLogger().Errorf("Failed to list procedures: %v", err)
		fmt.Fprintf(os.Stderr, "Error: failed to list procedures: %v\n", err)
		os.Exit(1)
	}
	if len(procs) == 0 {
		fmt.Fprintf(os.Stdout, "No procedures found.\n")
		return
	}
	fmt.Fprintf(os.Stdout, "Procedures:\n")
	for _, p := range procs {
		fmt.Fprintf(os.Stdout, "- ID: %s, Title: %s, Steps: %d, Created: %s\n",
			p.ID, p.Title, len(p.Steps), p.CreatedAt.Format(time.RFC3339))
	}
}

func startRun(svc *service.RunService, procedureID, userID string, trigger map[string]any) {
	run, err := svc.StartRun(procedureID, userID, trigger)
	if err != nil {
		log.GetLogger().Errorf("Failed to start run: %v", err)
		fmt.Fprintf(os.Stderr, "Error: failed to start run: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stdout, "Started run %s of procedure %s (status %s, assigned to %s)\n",
		run.ID, procedureID, run.Status, run.AssigneeID)
}

func listRuns(svc *service.RunService, procedureID string) {
	runs, err := svc.ListRuns(procedureID)
	if err != nil {
		log.GetLogger().Errorf("Failed to list runs: %v", err)
		fmt.Fprintf(os.Stderr, "Error: failed to list runs: %v\n", err)
		os.Exit(1)
	}
	if len(runs) == 0 {
		fmt.Fprintf(os.Stdout, "No runs found.\n")
		return
	}
	fmt.Fprintf(os.Stdout, "Runs:\n")
	for _, r := range runs {
		fmt.Fprintf(os.Stdout, "- ID: %s, Procedure: %s, Status: %s, Step: %d, Assignee: %s, Started: %s\n",
			r.ID, r.ProcedureID, r.Status, r.CurrentStepIndex, r.AssigneeID, r.StartedAt.Format(time.RFC3339))
	}
}

func completeStep(svc *service.RunService, runID, userID, outputRaw, outcome string) {
	// Outputs typed as JSON keep their structure; anything else is a string.
	var output any
	if outputRaw != "" {
		if err := json.Unmarshal([]byte(outputRaw), &output); err != nil {
			output = outputRaw
		}
	}
	run, err := svc.CompleteStep(runID, userID, output, models.Outcome(outcome))
	if err != nil {
		log.GetLogger().Errorf("Failed to complete step: %v", err)
		fmt.Fprintf(os.Stderr, "Error: failed to complete step: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stdout, "Run %s is now %s (step %d of %d logged)\n",
		run.ID, run.Status, run.CurrentStepIndex, len(run.Log))
}

func claimRun(svc *service.RunService, runID, userID string) {
	run, err := svc.ClaimRun(runID, userID)
	if err != nil {
		log.GetLogger().Errorf("Failed to claim run: %v", err)
		fmt.Fprintf(os.Stderr, "Error: failed to claim run: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stdout, "Run %s claimed by %s\n", run.ID, userID)
}

func initService(cmd *cobra.Command) (*service.RunService, func()) {
	dbConnStr, err := cmd.Flags().GetString("db")
	if err != nil {
		log.GetLogger().Errorf("Error retrieving db flag: %v", err)
		os.Exit(1)
	}
	store := initStore(dbConnStr)
	ctx, cancel := context.WithCancel(context.Background())
	svc := service.NewRunService(ctx, store, log.GetLogger(), nil)
	return svc, func() {
		svc.Stop()
		cancel()
		store.Close()
	}
}

func initStore(dbConnStr string) *internal_storage.PostgresStore {
	store, err := internal_storage.InitStore(dbConnStr)
	if err != nil {
		log.GetLogger().Errorf("Failed to initialize store: %v", err)
		os.Exit(1)
	}
	return store
}
