// fleethook is invoked by the scheduler around every worker slot attempt:
// "prepare" runs before the VM starts (token mint + overlay disk build) and
// "reclaim" runs after it exits, whatever the exit status. Each invocation is
// an independent process scoped to one attempt; all filenames derive from the
// job id and retry counter, so concurrent attempts never share state.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/mtorres/runnerfleet/internal/config"
	"github.com/mtorres/runnerfleet/internal/disk"
	"github.com/mtorres/runnerfleet/internal/fleet"
	"github.com/mtorres/runnerfleet/internal/github"
	"github.com/mtorres/runnerfleet/internal/image"
	"github.com/mtorres/runnerfleet/internal/reclaim"
	"github.com/spf13/cobra"
)

type hookArgs struct {
	workDir    string
	fleetName  string
	org        string
	repo       string
	credential string
	jobID      string
	retry      string
}

func main() {
	log.SetFlags(log.Ldate | log.Ltime)

	root := &cobra.Command{
		Use:          "fleethook",
		Short:        "Scheduler-invoked before/after hooks for worker slot attempts",
		SilenceUsage: true,
	}

	root.AddCommand(prepareCmd(), reclaimCmd())

	if err := root.Execute(); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}

func addCommonFlags(cmd *cobra.Command, a *hookArgs) {
	cmd.Flags().StringVar(&a.workDir, "workdir", "", "Fleet working directory")
	cmd.Flags().StringVar(&a.fleetName, "fleet", "", "Fleet name")
	cmd.Flags().StringVar(&a.jobID, "job", "", "Scheduler-assigned job id for this slot")
	cmd.Flags().StringVar(&a.retry, "retry", "", "Attempt counter for this slot")
	cmd.MarkFlagRequired("workdir")
	cmd.MarkFlagRequired("fleet")
	cmd.MarkFlagRequired("job")
	cmd.MarkFlagRequired("retry")
}

func prepareCmd() *cobra.Command {
	var a hookArgs
	cmd := &cobra.Command{
		Use:   "prepare",
		Short: "Mint a registration token and build the attempt's overlay disk",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _ := config.Load()

			gh, err := github.NewClient(cfg.Platform.APIBaseURL, a.credential)
			if err != nil {
				return err
			}
			tool, err := disk.NewTool()
			if err != nil {
				return err
			}

			ctx := context.Background()
			workerName := fleet.WorkerName(a.fleetName, a.jobID, a.retry)
			log.Printf("Provisioning attempt %s (job %s retry %s)", workerName, a.jobID, a.retry)

			token, err := gh.CreateRegistrationToken(ctx, a.org, a.repo)
			if err != nil {
				return fmt.Errorf("minting registration token: %w", err)
			}

			spec := fleet.Spec{Org: a.org, Repo: a.repo}
			diskPath, err := image.NewProvisioner(tool).Build(ctx, a.workDir, spec.RepoURL(), token, workerName)
			if err != nil {
				return err
			}

			log.Printf("Overlay disk ready: %s", diskPath)
			return nil
		},
	}
	addCommonFlags(cmd, &a)
	cmd.Flags().StringVar(&a.org, "org", "", "Organization scope")
	cmd.Flags().StringVar(&a.repo, "repo", "", "Repository scope (empty for organization-scoped)")
	cmd.Flags().StringVar(&a.credential, "credential", "", "Path to the admin token file")
	cmd.MarkFlagRequired("org")
	cmd.MarkFlagRequired("credential")
	return cmd
}

func reclaimCmd() *cobra.Command {
	var a hookArgs
	var exitCode int
	cmd := &cobra.Command{
		Use:   "reclaim",
		Short: "Extract an attempt's captured logs and discard its overlay disk",
		RunE: func(cmd *cobra.Command, args []string) error {
			tool, err := disk.NewTool()
			if err != nil {
				return err
			}

			workerName := fleet.WorkerName(a.fleetName, a.jobID, a.retry)
			diskPath := fleet.OutputDiskPath(a.workDir, workerName)

			err = reclaim.NewReclaimer(tool).Reclaim(context.Background(), diskPath, a.workDir, a.jobID, a.retry)

			// Extraction failure never resurrects the attempt: the disk is
			// gone either way, the logs are just lost. Exit clean so the
			// slot's retry decision stays with the VM job's own exit code.
			var recErr *reclaim.ReclaimError
			if errors.As(err, &recErr) {
				log.Printf("Warning: %v", recErr)
				return nil
			}
			if err != nil {
				return err
			}
			log.Printf("Logs reclaimed for attempt %s", workerName)

			attempt, convErr := strconv.Atoi(a.retry)
			if convErr == nil {
				log.Printf("Slot %s exited %d, entering phase %s", a.jobID, exitCode,
					fleet.NextPhase(exitCode, attempt))
			}
			return nil
		},
	}
	addCommonFlags(cmd, &a)
	cmd.Flags().IntVar(&exitCode, "exit", 0, "Exit code of the VM job for this attempt")
	return cmd
}
