// Package prober implements the peer liveness prober: a heap-driven
// scheduler that probes configured peers on a steady cadence and
// publishes an alive set for concurrent readers.
//
// The probe itself lives in internal/httpclient, which must not be
// imported from here; the daemon entrypoint wires httpclient.ProbePeer in
// as a ProbeFunc at startup (see cmd/hfmcd).
package prober

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/hfmc/hfmc-go/internal/log"
	"github.com/hfmc/hfmc-go/internal/peer"
)

// Interval is the steady cadence at which the scheduler wakes and
// dispatches at most one probe.
const Interval = 3 * time.Second

// ProbeFunc performs a single liveness probe against p and returns p with
// Alive and Epoch updated. It must never block longer than its own
// internal timeout and must never panic.
type ProbeFunc func(ctx context.Context, p peer.Peer) peer.Peer

type state int

const (
	stateIdle state = iota
	stateRunning
	stateStopping
)

// Prober is the single daemon-owned instance; it exclusively owns the
// alive set and the probe heap.
type Prober struct {
	probe ProbeFunc

	mu      sync.Mutex
	st      state
	peers   []peer.Peer // current registry snapshot, as staged peers become active
	staged  []peer.Peer
	staging bool
	alive   map[peer.Key]peer.Peer
	h       *probeHeap
	inFlt   map[peer.Key]bool

	stopCh chan struct{}
	doneCh chan struct{}
}

// New creates a Prober that dispatches probes via fn.
func New(initial []peer.Peer, fn ProbeFunc) *Prober {
	p := &Prober{
		probe: fn,
		peers: append([]peer.Peer{}, initial...),
		alive: make(map[peer.Key]peer.Peer),
		inFlt: make(map[peer.Key]bool),
	}
	p.h = newProbeHeap(p.peers)
	return p
}

// Alives returns a consistent snapshot of the currently alive peers, in
// registry order. It never blocks on an in-flight probe.
//
// Order matters to callers that fan out over the result: p.peers retains
// registry order, so the snapshot is built by walking it and filtering
// against the alive map rather than ranging over the map itself.
func (p *Prober) Alives() []peer.Peer {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]peer.Peer, 0, len(p.alive))
	for _, pr := range p.peers {
		if a, ok := p.alive[pr.Key()]; ok {
			out = append(out, a)
		}
	}
	return out
}

// UpdatePeers stages a complete replacement of the peer set. It takes
// effect at the next scheduler tick: peers removed disappear from the
// alive set within one tick, peers added are probed on subsequent ticks.
func (p *Prober) UpdatePeers(peers []peer.Peer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.staged = append([]peer.Peer{}, peers...)
	p.staging = true
}

func keysOf(peers []peer.Peer) map[peer.Key]peer.Peer {
	m := make(map[peer.Key]peer.Peer, len(peers))
	for _, pr := range peers {
		m[pr.Key()] = pr
	}
	return m
}

// applyStagedLocked must be called with p.mu held.
func (p *Prober) applyStagedLocked() {
	if !p.staging {
		return
	}
	oldKeys := keysOf(p.peers)
	newKeys := keysOf(p.staged)

	for k := range oldKeys {
		if _, still := newKeys[k]; !still {
			delete(p.alive, k)
		}
	}

	p.peers = p.staged
	p.staged = nil
	p.staging = false

	p.rebuildHeapLocked()
}

// rebuildHeapLocked rebuilds the probe heap from the current peer set,
// excluding peers with a probe in flight: those re-enter via probeDone,
// and including them here would put them in the heap twice. Must be
// called with p.mu held.
func (p *Prober) rebuildHeapLocked() {
	rebuilt := make([]peer.Peer, 0, len(p.peers))
	for _, pr := range p.peers {
		if !p.inFlt[pr.Key()] {
			rebuilt = append(rebuilt, pr)
		}
	}
	p.h = newProbeHeap(rebuilt)
}

// Start transitions Idle -> Running and begins the tick loop in a new
// goroutine. Calling Start on an already-running prober is a no-op.
func (p *Prober) Start() {
	p.mu.Lock()
	if p.st != stateIdle {
		p.mu.Unlock()
		return
	}
	p.st = stateRunning
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	// Probes that completed during a previous Stop were discarded without
	// re-entering the heap; start from a full rebuild.
	p.rebuildHeapLocked()
	p.mu.Unlock()

	go p.run()
}

// Stop transitions Running -> Stopping -> Idle. In-flight probes are
// allowed to complete; their results are discarded.
func (p *Prober) Stop() {
	p.mu.Lock()
	if p.st != stateRunning {
		p.mu.Unlock()
		return
	}
	p.st = stateStopping
	close(p.stopCh)
	done := p.doneCh
	p.mu.Unlock()

	<-done

	p.mu.Lock()
	p.st = stateIdle
	p.mu.Unlock()
}

func (p *Prober) run() {
	defer close(p.doneCh)

	ticker := time.NewTicker(Interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.tick()
		}
	}
}

func (p *Prober) tick() {
	p.mu.Lock()
	if p.st != stateRunning {
		p.mu.Unlock()
		return
	}
	p.applyStagedLocked()

	if p.h.Len() == 0 {
		p.mu.Unlock()
		log.Debug("prober: no peers configured to probe")
		return
	}

	next := heap.Pop(p.h).(peer.Peer)
	p.inFlt[next.Key()] = true
	p.mu.Unlock()

	go p.dispatch(next)
}

func (p *Prober) dispatch(target peer.Peer) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	result := p.probe(ctx, target)
	p.probeDone(result)
}

// probeDone is the completion callback: it advances the peer's epoch,
// re-pushes it onto the heap if still registered, and updates the alive
// set accordingly. A peer removed from the registry during its in-flight
// probe has its result discarded.
func (p *Prober) probeDone(result peer.Peer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	k := result.Key()
	delete(p.inFlt, k)

	if p.st == stateStopping || p.st == stateIdle {
		return
	}

	stillRegistered := false
	for _, pr := range p.peers {
		if pr.Key() == k {
			stillRegistered = true
			break
		}
	}
	if !stillRegistered {
		return
	}

	heap.Push(p.h, result)

	if result.Alive {
		p.alive[k] = result
	} else {
		delete(p.alive, k)
	}
}
