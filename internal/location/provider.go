// Package location tracks the user position: last-known short-circuit,
// continuous refinement, automatic stop after stabilization, and a timed
// fallback so readiness always concludes.
package location

import (
	"log/slog"
	"sync"
	"time"

	"github.com/Luckywi/EcoLyon-sub001/internal/geo"
)

// AuthStatus mirrors the platform authorization state.
type AuthStatus int

const (
	AuthUndetermined AuthStatus = iota
	AuthGranted
	AuthDenied
)

func (s AuthStatus) String() string {
	switch s {
	case AuthGranted:
		return "granted"
	case AuthDenied:
		return "denied"
	default:
		return "undetermined"
	}
}

// trackingState is the provider's position in its lifecycle.
type trackingState int

const (
	stateNoFix trackingState = iota
	stateKnownFixOnly
	stateLiveTracking
	stateStopped
)

// FixSource is the platform location collaborator. It pushes fixes and
// authorization changes back through the Provider's On* methods.
type FixSource interface {
	// LastKnown returns a cached fix synchronously, if one exists.
	LastKnown() (geo.Coordinate, bool)
	RequestAuthorization()
	StartUpdates()
	StopUpdates()
}

// State is an observable snapshot of the provider.
type State struct {
	Coordinate   *geo.Coordinate `json:"coordinate,omitempty"`
	Ready        bool            `json:"ready"`
	Auth         AuthStatus      `json:"-"`
	ErrorMessage string          `json:"error_message,omitempty"`
	Updating     bool            `json:"updating"`
}

type Config struct {
	// Fallback is returned when no real fix arrives within FallbackWait.
	Fallback          geo.Coordinate
	FallbackWait      time.Duration
	MovementThreshold float64 // meters between delivered fixes
	LiveFixTarget     int     // live fixes before auto-stop
	StopGrace         time.Duration
}

func (c *Config) applyDefaults() {
	if c.FallbackWait <= 0 {
		c.FallbackWait = 5 * time.Second
	}
	if c.MovementThreshold <= 0 {
		c.MovementThreshold = 50
	}
	if c.LiveFixTarget <= 0 {
		c.LiveFixTarget = 3
	}
	if c.StopGrace <= 0 {
		c.StopGrace = time.Second
	}
}

// Provider blends a last-known fix with continuous updates. Readiness is
// monotonic: once true it never reverts, either through a fix or through the
// fallback timeout.
type Provider struct {
	cfg    Config
	source FixSource
	bcast  *Broadcaster

	mu            sync.Mutex
	state         trackingState
	coord         *geo.Coordinate
	ready         bool
	auth          AuthStatus
	errMsg        string
	updating      bool
	liveFixes     int
	closed        bool
	fallbackTimer *time.Timer
	stopTimer     *time.Timer
}

func NewProvider(cfg Config, source FixSource) *Provider {
	cfg.applyDefaults()
	return &Provider{
		cfg:    cfg,
		source: source,
		bcast:  NewBroadcaster(),
	}
}

// Start reads the last-known fix, arms the fallback timer if there is none,
// and kicks off authorization or updates.
func (p *Provider) Start() {
	p.mu.Lock()
	var known *geo.Coordinate
	if c, ok := p.source.LastKnown(); ok {
		cc := c
		p.coord = &cc
		p.ready = true
		p.state = stateKnownFixOnly
		known = &cc
		slog.Info("using last known location", "lat", c.Latitude, "lon", c.Longitude)
	} else {
		p.fallbackTimer = time.AfterFunc(p.cfg.FallbackWait, p.fallbackTimeout)
	}
	auth := p.auth
	p.mu.Unlock()

	if known != nil {
		p.bcast.Broadcast(*known)
	}

	switch auth {
	case AuthUndetermined:
		p.source.RequestAuthorization()
	case AuthGranted:
		p.startUpdates()
	}
}

// OnFix receives one coordinate fix from the source.
func (p *Provider) OnFix(c geo.Coordinate) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	// Minimum movement between delivered live fixes.
	if p.state == stateLiveTracking && p.coord != nil &&
		geo.Distance(*p.coord, c) < p.cfg.MovementThreshold {
		p.mu.Unlock()
		return
	}

	cc := c
	p.coord = &cc
	p.ready = true
	p.errMsg = ""
	p.state = stateLiveTracking
	p.cancelFallbackLocked()

	p.liveFixes++
	if p.updating && p.liveFixes >= p.cfg.LiveFixTarget && p.stopTimer == nil {
		// Enough live fixes: let the position settle, then stop
		// updates to conserve power.
		p.stopTimer = time.AfterFunc(p.cfg.StopGrace, p.stopUpdates)
	}
	p.mu.Unlock()

	p.bcast.Broadcast(c)
}

// OnAuthChange receives an authorization transition from the source. Denial
// concludes readiness immediately: no fix will ever come.
func (p *Provider) OnAuthChange(status AuthStatus) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.auth = status

	switch status {
	case AuthGranted:
		p.mu.Unlock()
		p.startUpdates()
		return
	case AuthDenied:
		p.updating = false
		p.state = stateStopped
		p.ready = true
		p.errMsg = "location access denied"
		p.cancelFallbackLocked()
	}
	p.mu.Unlock()
}

// OnError receives a source failure. A provider that already has a fix keeps
// it and merely stops updating; one that never got a fix falls back.
func (p *Provider) OnError(err error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	if p.coord == nil {
		p.applyFallbackLocked("location error: " + err.Error())
		fallback := p.cfg.Fallback
		p.mu.Unlock()
		p.bcast.Broadcast(fallback)
		return
	}
	p.errMsg = "location error: " + err.Error()
	p.mu.Unlock()

	slog.Warn("location source error, keeping last fix", "error", err)
	p.stopUpdates()
}

// Refresh resumes continuous updates if they were stopped.
func (p *Provider) Refresh() {
	p.startUpdates()
}

// ForceUpdate stops and restarts continuous updates.
func (p *Provider) ForceUpdate() {
	p.stopUpdates()
	p.startUpdates()
}

// Snapshot returns the current observable state.
func (p *Provider) Snapshot() State {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := State{
		Ready:        p.ready,
		Auth:         p.auth,
		ErrorMessage: p.errMsg,
		Updating:     p.updating,
	}
	if p.coord != nil {
		cc := *p.coord
		s.Coordinate = &cc
	}
	return s
}

// Subscribe registers for coordinate updates.
func (p *Provider) Subscribe() (uint64, <-chan geo.Coordinate) {
	return p.bcast.Subscribe()
}

func (p *Provider) Unsubscribe(id uint64) {
	p.bcast.Unsubscribe(id)
}

// Close stops timers and updates and closes all subscriber channels.
func (p *Provider) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.cancelFallbackLocked()
	if p.stopTimer != nil {
		p.stopTimer.Stop()
		p.stopTimer = nil
	}
	wasUpdating := p.updating
	p.updating = false
	p.mu.Unlock()

	if wasUpdating {
		p.source.StopUpdates()
	}
	p.bcast.Close()
}

// startUpdates is idempotent: redundant calls while already updating, denied
// or closed are no-ops.
func (p *Provider) startUpdates() {
	p.mu.Lock()
	if p.updating || p.closed || p.auth == AuthDenied {
		p.mu.Unlock()
		return
	}
	p.updating = true
	p.liveFixes = 0
	if p.stopTimer != nil {
		p.stopTimer.Stop()
		p.stopTimer = nil
	}
	p.mu.Unlock()

	p.source.StartUpdates()
}

func (p *Provider) stopUpdates() {
	p.mu.Lock()
	if !p.updating {
		p.mu.Unlock()
		return
	}
	p.updating = false
	if p.coord != nil {
		p.state = stateStopped
	}
	p.mu.Unlock()

	p.source.StopUpdates()
	slog.Debug("location updates stopped")
}

// fallbackTimeout fires when no fix of any kind arrived within the bounded
// wait. Guarantees callers never block indefinitely on readiness.
func (p *Provider) fallbackTimeout() {
	p.mu.Lock()
	if p.ready || p.closed {
		p.mu.Unlock()
		return
	}
	p.applyFallbackLocked("no location fix within deadline, using fallback position")
	fallback := p.cfg.Fallback
	p.mu.Unlock()

	slog.Warn("location fallback engaged", "lat", fallback.Latitude, "lon", fallback.Longitude)
	p.bcast.Broadcast(fallback)
}

func (p *Provider) applyFallbackLocked(msg string) {
	fallback := p.cfg.Fallback
	p.coord = &fallback
	p.ready = true
	p.errMsg = msg
	p.state = stateStopped
	p.cancelFallbackLocked()
}

func (p *Provider) cancelFallbackLocked() {
	if p.fallbackTimer != nil {
		p.fallbackTimer.Stop()
		p.fallbackTimer = nil
	}
}
