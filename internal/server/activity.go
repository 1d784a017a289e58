package server

import (
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
)

// Activity records when the last request arrived. Writers are request
// handlers, possibly many at once; the reader is the idle watchdog.
type Activity struct {
	last atomic.Int64 // unix nanoseconds
	now  func() time.Time
}

// NewActivity returns a tracker whose last request time is the current time.
func NewActivity() *Activity {
	a := &Activity{now: time.Now}
	a.Touch()
	return a
}

// Touch marks a request as arriving now.
func (a *Activity) Touch() {
	a.TouchAt(a.now())
}

// TouchAt marks a request as arriving at t.
func (a *Activity) TouchAt(t time.Time) {
	a.last.Store(t.UnixNano())
}

// LastRequest returns the time of the most recent request.
func (a *Activity) LastRequest() time.Time {
	return time.Unix(0, a.last.Load())
}

// IdleFor returns how long it has been since the last request, as seen at now.
func (a *Activity) IdleFor(now time.Time) time.Duration {
	return now.Sub(a.LastRequest())
}

// Middleware touches the tracker before the request is handled, so requests
// still in flight count as activity.
func (a *Activity) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			a.Touch()
			return next(c)
		}
	}
}
