package fleet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"text/template"
	"time"

	"github.com/google/uuid"
	"github.com/mtorres/runnerfleet/internal/condor"
)

// Builder turns a fleet spec into scheduler state: one DAG of N replicated
// worker-slot jobs with before/after hooks, plus a separately submitted
// long-lived autoscaler job. The DAG templating mechanism only replicates
// one job shape, which is why the supervisory job gets its own submit file.
type Builder struct {
	sched condor.Scheduler

	// Paths the scheduler uses to invoke the hook and scaler binaries on
	// execution nodes. Bare names resolve through PATH.
	HookBin   string
	ScalerBin string
}

func NewBuilder(sched condor.Scheduler) *Builder {
	return &Builder{
		sched:     sched,
		HookBin:   "fleethook",
		ScalerBin: "fleetscaler",
	}
}

// Handle describes a submitted fleet. It is persisted as fleet.json in the
// working directory for later status queries and teardown.
type Handle struct {
	SubmissionID  string    `json:"submissionID"`
	Spec          Spec      `json:"spec"`
	DAGCluster    int       `json:"dagCluster"`
	ScalerCluster int       `json:"scalerCluster"`
	SubmittedAt   time.Time `json:"submittedAt"`
}

const ManifestName = "fleet.json"

var workerSubTemplate = template.Must(template.New("worker.sub").Parse(
	`# Worker slot template for fleet {{.Spec.Name}}. One attempt boots the shared
# base image with a per-attempt overlay disk carrying the bootstrap script.
universe                = vm
vm_type                 = kvm
vm_networking           = true
vm_no_output_vm         = false
vm_memory               = {{.Spec.MemoryMB}}
request_cpus            = {{.Spec.CPUs}}
vm_disk                 = {{.Spec.BaseImage}}:vda:w:qcow2,input_disk_$(workername).qcow2:vdb:w:qcow2
transfer_input_files    = {{.Spec.WorkDir}}/input_disk_$(workername).qcow2
transfer_output_files   = input_disk_$(workername).qcow2
transfer_output_remaps  = "input_disk_$(workername).qcow2 = {{.Spec.WorkDir}}/output_disk_$(workername).qcow2"
+JobBatchName           = "{{.Spec.Name}}"
log                     = {{.Spec.WorkDir}}/slots.log
queue
`))

var dagTemplate = template.Must(template.New("fleet.dag").Parse(
	`# Fleet {{.Spec.Name}}: {{.Spec.Slots}} worker slots around one shared template.
CONFIG {{.ConfigFile}}
{{range .Slots}}
JOB {{.}} {{$.SubFile}}
VARS {{.}} workername="{{$.Spec.Name}}-{{.}}-$(RETRY)"
SCRIPT PRE {{.}} {{$.HookBin}} prepare --workdir {{$.Spec.WorkDir}} --fleet {{$.Spec.Name}} --org {{$.Spec.Org}}{{if $.Spec.Repo}} --repo {{$.Spec.Repo}}{{end}} --credential {{$.Spec.CredentialFile}} --job $JOB --retry $RETRY
SCRIPT POST {{.}} {{$.HookBin}} reclaim --workdir {{$.Spec.WorkDir}} --fleet {{$.Spec.Name}} --job $JOB --retry $RETRY --exit $RETURN
RETRY {{.}} {{$.RetryCeiling}} UNLESS-EXIT {{$.SuccessExit}}
{{end}}`))

var scalerSubTemplate = template.Must(template.New("scaler.sub").Parse(
	`# Supervisory autoscaler for fleet {{.Spec.Name}}. Runs on the scheduler
# host for the fleet's whole lifetime.
universe                = local
executable              = {{.ScalerBin}}
arguments               = "--fleet {{.Spec.Name}} --org {{.Spec.Org}}{{if .Spec.Repo}} --repo {{.Spec.Repo}}{{end}} --credential {{.Spec.CredentialFile}} --idle-target {{.Spec.IdleTarget}} --slots {{.Spec.Slots}}"
transfer_executable     = false
+JobBatchName           = "{{.Spec.Name}}"
log                     = {{.Spec.WorkDir}}/scaler.log
output                  = {{.Spec.WorkDir}}/scaler.out
error                   = {{.Spec.WorkDir}}/scaler.err
queue
`))

// Submit runs the uniqueness guard, lays out the working directory with all
// job descriptors, and submits the DAG followed by the autoscaler job. On a
// guard failure nothing is created.
func (b *Builder) Submit(ctx context.Context, spec Spec) (*Handle, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	if err := b.checkUnique(ctx, spec.Name); err != nil {
		return nil, err
	}

	if err := os.Mkdir(spec.WorkDir, 0755); err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrExistingWorkingDir, spec.WorkDir)
		}
		return nil, fmt.Errorf("creating working directory: %w", err)
	}

	subFile := filepath.Join(spec.WorkDir, "worker.sub")
	dagFile := filepath.Join(spec.WorkDir, "fleet.dag")
	configFile := filepath.Join(spec.WorkDir, "fleet.dag.config")
	scalerFile := filepath.Join(spec.WorkDir, "scaler.sub")

	slots := make([]string, spec.Slots)
	for i := range slots {
		slots[i] = fmt.Sprintf("slot%d", i)
	}

	data := struct {
		Spec         Spec
		Slots        []string
		SubFile      string
		ConfigFile   string
		HookBin      string
		ScalerBin    string
		RetryCeiling int
		SuccessExit  int
	}{spec, slots, subFile, configFile, b.HookBin, b.ScalerBin, RetryCeiling, SuccessExitCode}

	if err := renderTo(workerSubTemplate, data, subFile); err != nil {
		return nil, err
	}
	if err := renderTo(dagTemplate, data, dagFile); err != nil {
		return nil, err
	}
	// The initial ceiling: nothing is busy yet, so start at the idle target.
	initial := fmt.Sprintf("DAGMAN_MAX_JOBS_SUBMITTED = %d\n", spec.IdleTarget)
	if err := os.WriteFile(configFile, []byte(initial), 0644); err != nil {
		return nil, fmt.Errorf("writing DAG config: %w", err)
	}
	if err := renderTo(scalerSubTemplate, data, scalerFile); err != nil {
		return nil, err
	}

	dagCluster, err := b.sched.SubmitDAG(ctx, dagFile)
	if err != nil {
		return nil, fmt.Errorf("submitting fleet DAG: %w", err)
	}

	scalerCluster, err := b.sched.Submit(ctx, scalerFile)
	if err != nil {
		return nil, fmt.Errorf("submitting autoscaler job: %w", err)
	}

	handle := &Handle{
		SubmissionID:  uuid.NewString(),
		Spec:          spec,
		DAGCluster:    dagCluster,
		ScalerCluster: scalerCluster,
		SubmittedAt:   time.Now().UTC(),
	}
	if err := writeManifest(spec.WorkDir, handle); err != nil {
		return nil, err
	}
	return handle, nil
}

// checkUnique is the fleet uniqueness guard: at most one active batch per
// fleet name.
func (b *Builder) checkUnique(ctx context.Context, name string) error {
	batches, err := b.sched.ActiveBatches(ctx)
	if err != nil {
		return fmt.Errorf("querying active batches: %w", err)
	}
	for _, batch := range batches {
		if batch.Name == name {
			return &NameCollisionError{Name: name}
		}
	}
	return nil
}

func renderTo(tmpl *template.Template, data any, path string) error {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("rendering %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	return nil
}

func writeManifest(workDir string, handle *Handle) error {
	data, err := json.MarshalIndent(handle, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling fleet manifest: %w", err)
	}
	path := filepath.Join(workDir, ManifestName)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing fleet manifest: %w", err)
	}
	return nil
}

// LoadManifest reads the fleet.json a previous Submit left in workDir.
func LoadManifest(workDir string) (*Handle, error) {
	data, err := os.ReadFile(filepath.Join(workDir, ManifestName))
	if err != nil {
		return nil, fmt.Errorf("reading fleet manifest: %w", err)
	}
	var handle Handle
	if err := json.Unmarshal(data, &handle); err != nil {
		return nil, fmt.Errorf("parsing fleet manifest: %w", err)
	}
	return &handle, nil
}
