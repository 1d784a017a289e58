package elevation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"

	"go.uber.org/zap"
)

// ErrRelaunch wraps any failure to run the elevated child: the user declined
// the prompt, the launcher is missing or the child could not start.
var ErrRelaunch = errors.New("elevation: failed to obtain elevated privileges")

// Request describes the one-shot elevated relaunch of this executable.
type Request struct {
	Executable string
	Args       []string
}

// RequestOptions are the settings forwarded to the elevated child.
type RequestOptions struct {
	RootFolder string
	Port       int
	CertCache  string
}

// NewRequest builds the relaunch request for executable. The child always
// gets the elevation marker and the HTTPS flag so it provisions and exits.
func NewRequest(executable string, opts RequestOptions) Request {
	args := []string{"--elevated", "--https", "--no-browser", "--port=" + strconv.Itoa(opts.Port)}
	if opts.CertCache != "" {
		args = append(args, "--cert-cache="+opts.CertCache)
	}
	args = append(args, "--", opts.RootFolder)
	return Request{Executable: executable, Args: args}
}

// Relauncher starts an elevated copy of the executable and blocks until it exits.
type Relauncher interface {
	Relaunch(ctx context.Context, req Request) error
}

// RelauncherFunc adapts a function to Relauncher.
type RelauncherFunc func(ctx context.Context, req Request) error

func (f RelauncherFunc) Relaunch(ctx context.Context, req Request) error {
	return f(ctx, req)
}

// Coordinator runs the elevation handshake.
type Coordinator struct {
	relauncher Relauncher
	privileged func() bool
	state      atomic.Int32
	logger     *zap.Logger
}

// NewCoordinator returns a coordinator using relauncher to elevate and
// privileged to test the current privilege level.
func NewCoordinator(relauncher Relauncher, privileged func() bool, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		relauncher: relauncher,
		privileged: privileged,
		logger:     logger.With(zap.String("package", "elevation")),
	}
}

// NewPlatformCoordinator returns a coordinator wired to this platform's
// privilege check and elevated launcher.
func NewPlatformCoordinator(logger *zap.Logger) *Coordinator {
	return NewCoordinator(platformRelauncher{}, IsPrivileged, logger)
}

// State returns the current handshake state.
func (c *Coordinator) State() State {
	return State(c.state.Load())
}

func (c *Coordinator) setState(s State) {
	prev := State(c.state.Swap(int32(s)))
	if prev != s {
		c.logger.Debug("elevation state change", zap.Stringer("from", prev), zap.Stringer("to", s))
	}
}

// Next decides the next action. Privileges are only checked on a store miss.
func (c *Coordinator) Next(elevatedFlag, storeHasCert bool) Action {
	in := Input{ElevatedFlag: elevatedFlag, StoreHasCert: storeHasCert}
	if !storeHasCert {
		in.Privileged = c.privileged()
	}
	action := Decide(in)
	if action == ActionProvisionAndExit {
		c.setState(StateElevatedExecuting)
	}
	c.logger.Debug("elevation decision",
		zap.Bool("privileged", in.Privileged),
		zap.Bool("elevated_flag", in.ElevatedFlag),
		zap.Bool("store_has_cert", in.StoreHasCert),
		zap.Stringer("action", action))
	return action
}

// Relaunch runs req elevated and blocks until the child exits. The state is
// RelaunchInFlight for the duration and Unprivileged afterwards. A child that
// ran but failed is not an error: the caller checks the store either way.
func (c *Coordinator) Relaunch(ctx context.Context, req Request) error {
	c.setState(StateRelaunchInFlight)
	defer c.setState(StateUnprivileged)

	c.logger.Info("administrator privileges are required to install the certificate, relaunching",
		zap.String("executable", req.Executable),
		zap.Strings("args", req.Args))
	err := c.relauncher.Relaunch(ctx, req)
	var childErr *ChildExitError
	switch {
	case errors.As(err, &childErr):
		c.logger.Warn("elevated child failed", zap.Int("exit_code", childErr.Code))
		return nil
	case err != nil:
		return fmt.Errorf("%w: %w", ErrRelaunch, err)
	}
	c.logger.Info("elevated child exited")
	return nil
}
