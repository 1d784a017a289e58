package elevation

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestDecide_AllCombinations(t *testing.T) {
	tests := []struct {
		privileged   bool
		elevatedFlag bool
		storeHasCert bool
		want         Action
	}{
		{privileged: false, elevatedFlag: false, storeHasCert: false, want: ActionRelaunch},
		{privileged: false, elevatedFlag: false, storeHasCert: true, want: ActionUseStored},
		{privileged: false, elevatedFlag: true, storeHasCert: false, want: ActionFail},
		{privileged: false, elevatedFlag: true, storeHasCert: true, want: ActionExitElevated},
		{privileged: true, elevatedFlag: false, storeHasCert: false, want: ActionProvisionAndServe},
		{privileged: true, elevatedFlag: false, storeHasCert: true, want: ActionUseStored},
		{privileged: true, elevatedFlag: true, storeHasCert: false, want: ActionProvisionAndExit},
		{privileged: true, elevatedFlag: true, storeHasCert: true, want: ActionExitElevated},
	}
	require.Len(t, tests, 8)

	seen := map[Input]bool{}
	for _, tt := range tests {
		in := Input{Privileged: tt.privileged, ElevatedFlag: tt.elevatedFlag, StoreHasCert: tt.storeHasCert}
		seen[in] = true
		t.Run(fmt.Sprintf("privileged=%t/elevated=%t/stored=%t", tt.privileged, tt.elevatedFlag, tt.storeHasCert), func(t *testing.T) {
			assert.Equal(t, tt.want, Decide(in))
			assert.Equal(t, tt.want, Decide(in), "decision must be deterministic")
		})
	}
	assert.Len(t, seen, 8, "table must cover every combination exactly once")
}

func TestActionAndStateStrings(t *testing.T) {
	for _, a := range []Action{ActionUseStored, ActionExitElevated, ActionRelaunch, ActionProvisionAndExit, ActionProvisionAndServe, ActionFail} {
		assert.NotEqual(t, "Unknown", a.String())
	}
	for _, s := range []State{StateUnprivileged, StateRelaunchInFlight, StateElevatedExecuting} {
		assert.NotEqual(t, "Unknown", s.String())
	}
	assert.Equal(t, "Unknown", Action(99).String())
	assert.Equal(t, "Unknown", State(99).String())
}

func TestCoordinatorNext_SkipsPrivilegeCheckOnStoreHit(t *testing.T) {
	checks := 0
	c := NewCoordinator(nil, func() bool { checks++; return false }, zaptest.NewLogger(t))

	assert.Equal(t, ActionUseStored, c.Next(false, true))
	assert.Equal(t, ActionExitElevated, c.Next(true, true))
	assert.Equal(t, 0, checks)

	assert.Equal(t, ActionRelaunch, c.Next(false, false))
	assert.Equal(t, 1, checks)
	assert.Equal(t, StateUnprivileged, c.State())
}

func TestCoordinatorNext_ElevatedChildEntersExecuting(t *testing.T) {
	c := NewCoordinator(nil, func() bool { return true }, nil)
	assert.Equal(t, ActionProvisionAndExit, c.Next(true, false))
	assert.Equal(t, StateElevatedExecuting, c.State())
}

func TestCoordinatorRelaunch(t *testing.T) {
	req := NewRequest("/usr/local/bin/serve", RequestOptions{RootFolder: "/srv/site", Port: 8443})

	t.Run("blocks in RelaunchInFlight until the child exits", func(t *testing.T) {
		var c *Coordinator
		var during State
		var got Request
		c = NewCoordinator(RelauncherFunc(func(_ context.Context, r Request) error {
			during = c.State()
			got = r
			return nil
		}), func() bool { return false }, zaptest.NewLogger(t))

		require.NoError(t, c.Relaunch(context.Background(), req))
		assert.Equal(t, StateRelaunchInFlight, during)
		assert.Equal(t, StateUnprivileged, c.State())
		assert.Equal(t, req, got)
	})

	t.Run("launcher failure is wrapped", func(t *testing.T) {
		declined := errors.New("the operation was canceled by the user")
		c := NewCoordinator(RelauncherFunc(func(context.Context, Request) error {
			return declined
		}), func() bool { return false }, nil)

		err := c.Relaunch(context.Background(), req)
		assert.ErrorIs(t, err, ErrRelaunch)
		assert.ErrorIs(t, err, declined)
		assert.Equal(t, StateUnprivileged, c.State())
	})

	t.Run("child that ran and failed is left to the store lookup", func(t *testing.T) {
		c := NewCoordinator(RelauncherFunc(func(context.Context, Request) error {
			return &ChildExitError{Code: 10}
		}), func() bool { return false }, zaptest.NewLogger(t))

		require.NoError(t, c.Relaunch(context.Background(), req))
		assert.Equal(t, StateUnprivileged, c.State())
	})
}

func TestNewRequest(t *testing.T) {
	req := NewRequest("/opt/serve", RequestOptions{
		RootFolder: "/home/dev/my site",
		Port:       9000,
		CertCache:  "/home/dev/.cache/serve/localhost.pfx",
	})
	assert.Equal(t, "/opt/serve", req.Executable)
	assert.Equal(t, []string{
		"--elevated", "--https", "--no-browser", "--port=9000",
		"--cert-cache=/home/dev/.cache/serve/localhost.pfx",
		"--", "/home/dev/my site",
	}, req.Args)

	req = NewRequest("/opt/serve", RequestOptions{RootFolder: "-odd", Port: 80})
	assert.Equal(t, []string{"--elevated", "--https", "--no-browser", "--port=80", "--", "-odd"}, req.Args)
}

func TestPowershellQuote(t *testing.T) {
	assert.Equal(t, `'C:\Program Files\serve.exe'`, powershellQuote(`C:\Program Files\serve.exe`))
	assert.Equal(t, `'it''s'`, powershellQuote(`it's`))
}
