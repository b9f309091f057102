package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/mtorres/runnerfleet/internal/condor"
	"github.com/mtorres/runnerfleet/internal/config"
	"github.com/mtorres/runnerfleet/internal/fleet"
	"github.com/mtorres/runnerfleet/internal/github"
	"github.com/spf13/cobra"
)

var cfg config.Config

func main() {
	cfg, _ = config.Load()

	root := &cobra.Command{
		Use:           "fleetctl",
		Short:         "Manage ephemeral CI runner fleets on the batch scheduler",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		submitCmd(),
		statusCmd(),
		rmCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		var collision *fleet.NameCollisionError
		var cred *github.CredentialError
		switch {
		case errors.As(err, &collision):
			os.Exit(2)
		case errors.As(err, &cred):
			os.Exit(3)
		}
		os.Exit(1)
	}
}

func submitCmd() *cobra.Command {
	spec := fleet.Spec{
		Name:           cfg.Fleet.Name,
		Slots:          cfg.Fleet.Slots,
		IdleTarget:     cfg.Fleet.IdleTarget,
		CPUs:           cfg.VM.CPUs,
		MemoryMB:       cfg.VM.MemoryMB,
		BaseImage:      cfg.VM.BaseImage,
		CredentialFile: cfg.Platform.CredentialFile,
	}

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a new fleet of worker slots",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Validate the credential up front: a bad credential file must
			// fail before any scheduler or filesystem state exists.
			if _, err := github.NewClient(cfg.Platform.APIBaseURL, spec.CredentialFile); err != nil {
				return err
			}

			sched, err := condor.NewScheduler()
			if err != nil {
				return err
			}

			handle, err := fleet.NewBuilder(sched).Submit(context.Background(), spec)
			if err != nil {
				return err
			}

			fmt.Printf("Fleet %q submitted: %d slots, idle target %d\n", spec.Name, spec.Slots, spec.IdleTarget)
			fmt.Printf("  DAG cluster:    %d\n", handle.DAGCluster)
			fmt.Printf("  Scaler cluster: %d\n", handle.ScalerCluster)
			fmt.Printf("  Working dir:    %s\n", spec.WorkDir)
			return nil
		},
	}

	cmd.Flags().StringVar(&spec.Org, "org", "", "Organization the runners register against (required)")
	cmd.Flags().StringVar(&spec.Repo, "repo", "", "Repository scope (empty for organization-scoped runners)")
	cmd.Flags().StringVar(&spec.CredentialFile, "credential", spec.CredentialFile, "Path to the admin token file")
	cmd.Flags().StringVar(&spec.WorkDir, "workdir", "", "Fresh working directory for fleet artifacts (required)")
	cmd.Flags().StringVar(&spec.BaseImage, "image", spec.BaseImage, "Base VM image the overlay disks layer over")
	cmd.Flags().StringVar(&spec.Name, "name", spec.Name, "Fleet name (runner name prefix and batch name)")
	cmd.Flags().IntVar(&spec.Slots, "slots", spec.Slots, "Total worker slots")
	cmd.Flags().IntVar(&spec.IdleTarget, "idle-target", spec.IdleTarget, "Idle workers to keep warm")
	cmd.Flags().IntVar(&spec.CPUs, "cpus", spec.CPUs, "CPU cores per worker VM")
	cmd.Flags().IntVar(&spec.MemoryMB, "memory", spec.MemoryMB, "Memory per worker VM in MB")
	cmd.MarkFlagRequired("org")
	cmd.MarkFlagRequired("workdir")
	return cmd
}

func statusCmd() *cobra.Command {
	var workDir string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show a submitted fleet's state",
		RunE: func(cmd *cobra.Command, args []string) error {
			handle, err := fleet.LoadManifest(workDir)
			if err != nil {
				return err
			}

			sched, err := condor.NewScheduler()
			if err != nil {
				return err
			}
			batches, err := sched.ActiveBatches(context.Background())
			if err != nil {
				return err
			}

			active := false
			jobs := 0
			for _, b := range batches {
				if b.Name == handle.Spec.Name {
					active = true
					jobs = b.Jobs
				}
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "Fleet:\t%s\n", handle.Spec.Name)
			fmt.Fprintf(w, "Submitted:\t%s\n", handle.SubmittedAt.Format(time.RFC3339))
			fmt.Fprintf(w, "Slots:\t%d (idle target %d)\n", handle.Spec.Slots, handle.Spec.IdleTarget)
			if active {
				fmt.Fprintf(w, "Scheduler:\tactive, %d queued/running jobs\n", jobs)
			} else {
				fmt.Fprintf(w, "Scheduler:\tno active batch (fleet removed or finished)\n")
			}
			w.Flush()

			// The scaler's snapshot is best effort: the service may not be
			// up yet, or we may be on a different host.
			printScalerStatus()
			return nil
		},
	}
	cmd.Flags().StringVar(&workDir, "workdir", "", "Fleet working directory (required)")
	cmd.MarkFlagRequired("workdir")
	return cmd
}

func printScalerStatus() {
	url := fmt.Sprintf("http://127.0.0.1:%d/status", cfg.Scaler.StatusPort)
	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return
	}
	fmt.Println("Autoscaler:")
	buf := make([]byte, 4096)
	n, _ := resp.Body.Read(buf)
	fmt.Printf("  %s\n", buf[:n])
}

func rmCmd() *cobra.Command {
	var workDir string
	cmd := &cobra.Command{
		Use:   "rm",
		Short: "Remove a fleet's entire job batch from the scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			handle, err := fleet.LoadManifest(workDir)
			if err != nil {
				return err
			}

			sched, err := condor.NewScheduler()
			if err != nil {
				return err
			}
			if err := sched.Remove(context.Background(), handle.Spec.Name); err != nil {
				return err
			}
			fmt.Printf("Fleet %q removed. In-flight hooks may still complete; artifacts remain in %s\n",
				handle.Spec.Name, workDir)
			return nil
		},
	}
	cmd.Flags().StringVar(&workDir, "workdir", "", "Fleet working directory (required)")
	cmd.MarkFlagRequired("workdir")
	return cmd
}
