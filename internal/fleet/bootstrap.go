package fleet

import (
	"bytes"
	"fmt"
	"text/template"
)

// Log filenames the bootstrap script appends to inside the overlay disk. The
// reclaimer extracts exactly these two after the VM job exits.
const (
	StdoutLogName = "runner-stdout.log"
	StderrLogName = "runner-stderr.log"
)

// BootstrapScriptName is the single executable packed into the overlay disk.
const BootstrapScriptName = "bootstrap.sh"

// bootstrapTemplate registers the runner unattended as ephemeral and
// auto-replacing, then hands the process over to the long-running worker.
// Values are substituted verbatim; callers must not pass template-breaking
// characters. The exit code convention matters: the script exits with the
// retry sentinel only on graceful completion, which is the sole signal that
// stops the scheduler from launching another attempt.
var bootstrapTemplate = template.Must(template.New("bootstrap").Parse(`#!/bin/sh
set -e
cd "$(dirname "$0")"
LOGDIR=$(pwd)
cd /opt/actions-runner
{
	./config.sh --unattended \
		--url {{.RepoURL}} \
		--token {{.Token}} \
		--name {{.WorkerName}} \
		--ephemeral \
		--replace
	exec ./run.sh
} >>"$LOGDIR/` + StdoutLogName + `" 2>>"$LOGDIR/` + StderrLogName + `"
`))

// RenderBootstrap produces the bootstrap script content for one attempt. The
// output is a pure function of the three values; two identical calls yield
// byte-identical scripts.
func RenderBootstrap(repoURL, token, workerName string) ([]byte, error) {
	var buf bytes.Buffer
	err := bootstrapTemplate.Execute(&buf, struct {
		RepoURL    string
		Token      string
		WorkerName string
	}{repoURL, token, workerName})
	if err != nil {
		return nil, fmt.Errorf("rendering bootstrap script: %w", err)
	}
	return buf.Bytes(), nil
}
