// Package orchestrator implements per-URI diagnostic debouncing with
// version-gated publishing.
//
// Each open document owns one debounce slot: a mutex-guarded *time.Timer
// plus the cancel func of the run it will fire. Scheduling a new run first
// cancels whatever is already in the slot, so between two rapid edits at
// most one diagnostic pass runs, for the later version.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"go.lsp.dev/protocol"
)

// DebounceDelay is the fixed delay between an edit and the diagnostic run
// it schedules.
const DebounceDelay = 300 * time.Millisecond

// DiagnosticsFunc runs validation for uri at the given version and returns
// the diagnostics to publish. It is called off the goroutine that
// scheduled it, once the job's delay (DebounceDelay for Schedule, none for
// RunNow) has elapsed without a newer edit.
type DiagnosticsFunc func(ctx context.Context, uri protocol.DocumentURI, version int32) ([]protocol.Diagnostic, error)

// PublishFunc delivers diagnostics to the client.
type PublishFunc func(uri protocol.DocumentURI, version int32, diags []protocol.Diagnostic)

// CurrentVersionFunc reports the document's current version, or false if
// it is no longer open.
type CurrentVersionFunc func(uri protocol.DocumentURI) (int32, bool)

// job is one document's debounce slot.
type job struct {
	mu     sync.Mutex
	timer  *time.Timer
	cancel context.CancelFunc
}

func (j *job) stop() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.timer != nil {
		j.timer.Stop()
		j.timer = nil
	}
	if j.cancel != nil {
		j.cancel()
		j.cancel = nil
	}
}

// Orchestrator schedules debounced diagnostic passes and publishes them
// only if the document's version hasn't moved on by the time the pass
// completes.
type Orchestrator struct {
	diagnose       DiagnosticsFunc
	publish        PublishFunc
	currentVersion CurrentVersionFunc

	mu   sync.Mutex
	jobs map[protocol.DocumentURI]*job
}

// New returns an Orchestrator that runs diagnose and hands results to
// publish, gating every publish on currentVersion so that a diagnostic
// pass for an older version is never delivered after a newer one.
func New(diagnose DiagnosticsFunc, publish PublishFunc, currentVersion CurrentVersionFunc) *Orchestrator {
	return &Orchestrator{
		diagnose:       diagnose,
		publish:        publish,
		currentVersion: currentVersion,
		jobs:           make(map[protocol.DocumentURI]*job),
	}
}

// Schedule cancels any pending diagnostic job for uri and schedules a new
// one for version to run after DebounceDelay. The version is the one
// passed here; the run publishes only if the document is still at it.
func (o *Orchestrator) Schedule(uri protocol.DocumentURI, version int32) {
	o.scheduleAfter(uri, version, DebounceDelay)
}

// RunNow cancels any pending job for uri and runs diagnostics immediately,
// for the undelayed pass a didOpen triggers.
func (o *Orchestrator) RunNow(uri protocol.DocumentURI, version int32) {
	o.scheduleAfter(uri, version, 0)
}

func (o *Orchestrator) scheduleAfter(uri protocol.DocumentURI, version int32, delay time.Duration) {
	j := o.slot(uri)

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.timer != nil {
		j.timer.Stop()
	}
	if j.cancel != nil {
		j.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	j.cancel = cancel
	j.timer = time.AfterFunc(delay, func() { o.run(ctx, uri, version) })
}

func (o *Orchestrator) run(ctx context.Context, uri protocol.DocumentURI, version int32) {
	if ctx.Err() != nil {
		return
	}
	diags, err := o.diagnose(ctx, uri, version)
	if err != nil || ctx.Err() != nil {
		return
	}
	// A job for version v only publishes if the document is still at v
	// when the job finishes.
	if cur, ok := o.currentVersion(uri); !ok || cur != version {
		return
	}
	o.publish(uri, version, diags)
}

func (o *Orchestrator) slot(uri protocol.DocumentURI) *job {
	o.mu.Lock()
	defer o.mu.Unlock()
	j, ok := o.jobs[uri]
	if !ok {
		j = &job{}
		o.jobs[uri] = j
	}
	return j
}

// Cancel stops and removes the pending job for uri, if any. Called on
// didClose.
func (o *Orchestrator) Cancel(uri protocol.DocumentURI) {
	o.mu.Lock()
	j, ok := o.jobs[uri]
	delete(o.jobs, uri)
	o.mu.Unlock()
	if ok {
		j.stop()
	}
}

// Shutdown cancels every pending job, for server shutdown.
func (o *Orchestrator) Shutdown() {
	o.mu.Lock()
	jobs := make([]*job, 0, len(o.jobs))
	for _, j := range o.jobs {
		jobs = append(jobs, j)
	}
	o.jobs = make(map[protocol.DocumentURI]*job)
	o.mu.Unlock()
	for _, j := range jobs {
		j.stop()
	}
}
