package condor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
)

// Scheduler is the slice of the batch system the fleet controller drives:
// submitting the worker DAG and the supervisory job, querying active batches,
// adjusting a batch's concurrency ceiling, and tearing a batch down.
type Scheduler interface {
	Submit(ctx context.Context, submitFile string) (int, error)
	SubmitDAG(ctx context.Context, dagFile string) (int, error)
	ActiveBatches(ctx context.Context) ([]Batch, error)
	SetMaxRunning(ctx context.Context, batchName string, n int) error
	Remove(ctx context.Context, batchName string) error
}

// Batch is an active job batch as reported by the queue.
type Batch struct {
	Name     string
	Clusters []int
	Jobs     int
}

type scheduler struct{}

// NewScheduler verifies the scheduler's command-line tools are present.
func NewScheduler() (Scheduler, error) {
	for _, bin := range []string{"condor_submit", "condor_submit_dag", "condor_q", "condor_qedit", "condor_rm"} {
		if _, err := exec.LookPath(bin); err != nil {
			return nil, fmt.Errorf("%s not found in PATH: %w", bin, err)
		}
	}
	return &scheduler{}, nil
}

func run(ctx context.Context, bin string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s %s failed: %w\nstderr: %s", bin, strings.Join(args, " "), err, stderr.String())
	}
	return stdout.String(), nil
}

var clusterRe = regexp.MustCompile(`submitted to cluster (\d+)`)

func parseCluster(output string) (int, error) {
	m := clusterRe.FindStringSubmatch(output)
	if m == nil {
		return 0, fmt.Errorf("no cluster id in submit output: %q", strings.TrimSpace(output))
	}
	return strconv.Atoi(m[1])
}

func (s *scheduler) Submit(ctx context.Context, submitFile string) (int, error) {
	out, err := run(ctx, "condor_submit", submitFile)
	if err != nil {
		return 0, err
	}
	return parseCluster(out)
}

func (s *scheduler) SubmitDAG(ctx context.Context, dagFile string) (int, error) {
	out, err := run(ctx, "condor_submit_dag", "-notification", "never", dagFile)
	if err != nil {
		return 0, err
	}
	return parseCluster(out)
}

type queueEntry struct {
	ClusterID int    `json:"ClusterId"`
	BatchName string `json:"JobBatchName"`
	JobStatus int    `json:"JobStatus"`
}

func (s *scheduler) ActiveBatches(ctx context.Context) ([]Batch, error) {
	out, err := run(ctx, "condor_q", "-json", "-attributes", "ClusterId,JobBatchName,JobStatus")
	if err != nil {
		return nil, err
	}
	return parseBatches(out)
}

// parseBatches groups queue entries by batch name. condor_q emits nothing at
// all (not even "[]") for an empty queue.
func parseBatches(out string) ([]Batch, error) {
	trimmed := strings.TrimSpace(out)
	if trimmed == "" {
		return nil, nil
	}

	var entries []queueEntry
	if err := json.Unmarshal([]byte(trimmed), &entries); err != nil {
		return nil, fmt.Errorf("parsing queue listing: %w", err)
	}

	byName := make(map[string]*Batch)
	var order []string
	for _, e := range entries {
		b, ok := byName[e.BatchName]
		if !ok {
			b = &Batch{Name: e.BatchName}
			byName[e.BatchName] = b
			order = append(order, e.BatchName)
		}
		b.Jobs++
		seen := false
		for _, c := range b.Clusters {
			if c == e.ClusterID {
				seen = true
				break
			}
		}
		if !seen {
			b.Clusters = append(b.Clusters, e.ClusterID)
		}
	}

	batches := make([]Batch, 0, len(order))
	for _, name := range order {
		batches = append(batches, *byName[name])
	}
	return batches, nil
}

// SetMaxRunning pushes a new concurrency ceiling onto the batch's DAGMan
// job. Universe 7 is the scheduler universe the DAGMan supervisor runs in.
func (s *scheduler) SetMaxRunning(ctx context.Context, batchName string, n int) error {
	constraint := fmt.Sprintf(`JobBatchName == %q && JobUniverse == 7`, batchName)
	_, err := run(ctx, "condor_qedit", "-constraint", constraint, "DAGMan_MaxJobs", strconv.Itoa(n))
	return err
}

func (s *scheduler) Remove(ctx context.Context, batchName string) error {
	_, err := run(ctx, "condor_rm", "-constraint", fmt.Sprintf("JobBatchName == %q", batchName))
	return err
}
