package fleet

import (
	"fmt"
	"path/filepath"
	"strings"
)

// WorkerName derives the runner identity for one attempt. The fleet name
// prefix is what lets the controller attribute registrations to this fleet,
// and the job/retry pair makes the name unique per attempt so tokens and
// disks are never reused across retries.
func WorkerName(fleetName, jobID, retry string) string {
	return fmt.Sprintf("%s-%s-%s", fleetName, jobID, retry)
}

// CreateFilename embeds the job id and retry counter into base's name, before
// the extension, so concurrent attempts and repeated retries never collide.
func CreateFilename(base, jobID, retry string) string {
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	return fmt.Sprintf("%s_%s_%s%s", stem, jobID, retry, ext)
}

// InputDiskPath is where the provisioner leaves the overlay disk for an
// attempt and where the worker job template picks it up.
func InputDiskPath(workDir, workerName string) string {
	return filepath.Join(workDir, fmt.Sprintf("input_disk_%s.qcow2", workerName))
}

// OutputDiskPath is where the scheduler deposits the overlay disk after the
// VM job exits, ready for the log reclaimer.
func OutputDiskPath(workDir, workerName string) string {
	return filepath.Join(workDir, fmt.Sprintf("output_disk_%s.qcow2", workerName))
}
