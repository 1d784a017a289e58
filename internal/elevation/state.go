// Package elevation decides whether the trusted-root store can be written by
// this process and, when it cannot, relaunches the executable with elevated
// privileges and waits for it.
package elevation

// State is where the coordinator is in the elevation handshake.
type State int

const (
	// StateUnprivileged is the starting state, and the state the parent
	// returns to once a relaunched child has exited.
	StateUnprivileged State = iota
	// StateRelaunchInFlight means an elevated child is running and the
	// parent is blocked on it.
	StateRelaunchInFlight
	// StateElevatedExecuting means this process is the elevated child: it
	// provisions the certificate and exits without serving.
	StateElevatedExecuting
)

func (s State) String() string {
	switch s {
	case StateUnprivileged:
		return "Unprivileged"
	case StateRelaunchInFlight:
		return "RelaunchInFlight"
	case StateElevatedExecuting:
		return "ElevatedExecuting"
	default:
		return "Unknown"
	}
}

// Action is what the provisioner must do next.
type Action int

const (
	// ActionUseStored serves with the certificate already in the store.
	ActionUseStored Action = iota
	// ActionExitElevated ends an elevated child that found the certificate
	// already installed. The child never serves.
	ActionExitElevated
	// ActionRelaunch relaunches this executable elevated and waits for it.
	ActionRelaunch
	// ActionProvisionAndExit generates, caches and installs a certificate,
	// then exits. Only the elevated child takes this path.
	ActionProvisionAndExit
	// ActionProvisionAndServe generates, caches and installs a certificate
	// in an already-elevated interactive session, then serves.
	ActionProvisionAndServe
	// ActionFail ends provisioning: the process was relaunched to gain
	// privileges but still does not have them.
	ActionFail
)

func (a Action) String() string {
	switch a {
	case ActionUseStored:
		return "UseStored"
	case ActionExitElevated:
		return "ExitElevated"
	case ActionRelaunch:
		return "Relaunch"
	case ActionProvisionAndExit:
		return "ProvisionAndExit"
	case ActionProvisionAndServe:
		return "ProvisionAndServe"
	case ActionFail:
		return "Fail"
	default:
		return "Unknown"
	}
}

// Input is the complete set of facts the decision depends on.
type Input struct {
	Privileged   bool // the process can write the trusted-root store
	ElevatedFlag bool // the process was started by a relaunch
	StoreHasCert bool // the store already holds the labelled certificate
}

// Decide maps every Input to exactly one Action.
func Decide(in Input) Action {
	switch {
	case in.StoreHasCert && in.ElevatedFlag:
		return ActionExitElevated
	case in.StoreHasCert:
		return ActionUseStored
	case !in.Privileged && in.ElevatedFlag:
		return ActionFail
	case !in.Privileged:
		return ActionRelaunch
	case in.ElevatedFlag:
		return ActionProvisionAndExit
	default:
		return ActionProvisionAndServe
	}
}
