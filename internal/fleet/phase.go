package fleet

// Phase is a worker slot's lifecycle stage. The transitions are driven by the
// external scheduler: the before hook runs during Provisioning, the VM job
// during Launched, the after hook during Extracting, and the retry decision
// produces Retiring, Retrying or Exhausted.
type Phase string

const (
	PhasePending      Phase = "pending"
	PhaseProvisioning Phase = "provisioning"
	PhaseLaunched     Phase = "launched"
	PhaseExtracting   Phase = "extracting"
	PhaseRetrying     Phase = "retrying"
	PhaseRetiring     Phase = "retiring"
	PhaseExhausted    Phase = "exhausted"
)

// SuccessExitCode is the sentinel the in-VM bootstrap exits with when the
// slot should stop retrying. Any other exit code, success or not, schedules
// another attempt. The bootstrap script owns this convention; nothing here
// validates that the VM actually ran a CI job.
const SuccessExitCode = 93

// RetryCeiling is the per-slot attempt budget. It is deliberately enormous:
// slots retry effectively forever until the sentinel exit or fleet removal.
const RetryCeiling = 10000

// NextPhase resolves the phase a slot enters after its attempt exited and
// log extraction finished.
func NextPhase(exitCode, attempt int) Phase {
	if exitCode == SuccessExitCode {
		return PhaseRetiring
	}
	if attempt >= RetryCeiling {
		return PhaseExhausted
	}
	return PhaseRetrying
}

// Terminal reports whether no further attempt follows the phase.
func (p Phase) Terminal() bool {
	return p == PhaseRetiring || p == PhaseExhausted
}
