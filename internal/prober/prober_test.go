package prober

import (
	"container/heap"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hfmc/hfmc-go/internal/peer"
)

func TestProbeHeapOrdering(t *testing.T) {
	peers := []peer.Peer{
		{IP: "10.0.0.3", Port: 9090, Epoch: 5},
		{IP: "10.0.0.1", Port: 9090, Epoch: 1},
		{IP: "10.0.0.2", Port: 9090, Epoch: 3},
	}
	h := newProbeHeap(peers)

	var order []int64
	for h.Len() > 0 {
		p := heap.Pop(h).(peer.Peer)
		order = append(order, p.Epoch)
	}
	assert.Equal(t, []int64{1, 3, 5}, order)
}

func TestProbeHeapTieBreaksByIdentity(t *testing.T) {
	peers := []peer.Peer{
		{IP: "10.0.0.2", Port: 9090, Epoch: 0},
		{IP: "10.0.0.1", Port: 9090, Epoch: 0},
	}
	h := newProbeHeap(peers)
	first := heap.Pop(h).(peer.Peer)
	assert.Equal(t, "10.0.0.1", first.IP)
}

// blockingProbe lets a test control exactly when an in-flight probe
// completes, so it can observe state mid-probe.
func blockingProbe(gate chan struct{}, alive bool) ProbeFunc {
	return func(ctx context.Context, p peer.Peer) peer.Peer {
		<-gate
		p.Alive = alive
		p.Epoch = time.Now().UnixNano()
		return p
	}
}

func TestAliveSetReflectsProbeResult(t *testing.T) {
	target := peer.Peer{IP: "10.0.0.1", Port: 9090}
	gate := make(chan struct{})
	p := New([]peer.Peer{target}, blockingProbe(gate, true))

	p.mu.Lock()
	p.st = stateRunning
	p.mu.Unlock()

	p.tick()
	close(gate)

	require.Eventually(t, func() bool {
		return len(p.Alives()) == 1
	}, time.Second, 5*time.Millisecond)

	assert.True(t, p.Alives()[0].Alive)
}

func TestUpdatePeersDropsRemovedFromAliveSetWithinOneTick(t *testing.T) {
	a := peer.Peer{IP: "10.0.0.1", Port: 9090}
	b := peer.Peer{IP: "10.0.0.2", Port: 9090}

	p := New([]peer.Peer{a, b}, func(ctx context.Context, target peer.Peer) peer.Peer {
		target.Alive = true
		target.Epoch = time.Now().UnixNano()
		return target
	})

	// Seed the alive set directly, bypassing the scheduler, to simulate
	// both peers having already been probed successfully.
	p.mu.Lock()
	p.alive[a.Key()] = a
	p.alive[b.Key()] = b
	p.st = stateRunning
	p.mu.Unlock()

	p.UpdatePeers([]peer.Peer{a}) // drop b

	p.mu.Lock()
	p.applyStagedLocked()
	p.mu.Unlock()

	alive := p.Alives()
	assert.Len(t, alive, 1)
	assert.Equal(t, a.Key(), alive[0].Key())
}

func TestAlivesPreservesRegistryOrderAcrossRepeatedCalls(t *testing.T) {
	peers := []peer.Peer{
		{IP: "10.0.0.3", Port: 9090},
		{IP: "10.0.0.1", Port: 9090},
		{IP: "10.0.0.4", Port: 9090},
		{IP: "10.0.0.2", Port: 9090},
	}
	p := New(peers, nil)

	p.mu.Lock()
	for _, pr := range peers {
		pr.Alive = true
		p.alive[pr.Key()] = pr
	}
	p.mu.Unlock()

	want := []peer.Key{peers[0].Key(), peers[1].Key(), peers[2].Key(), peers[3].Key()}
	for i := 0; i < 20; i++ {
		got := p.Alives()
		require.Len(t, got, len(want))
		for j, pr := range got {
			assert.Equal(t, want[j], pr.Key(), "Alives() must preserve registry order, call %d", i)
		}
	}
}

func TestStartStopIsIdempotentAndDrainsInFlightProbes(t *testing.T) {
	target := peer.Peer{IP: "10.0.0.1", Port: 9090}
	var once sync.Once
	gate := make(chan struct{})

	p := New([]peer.Peer{target}, blockingProbe(gate, true))
	p.Start()
	p.Start() // no-op, must not panic or deadlock

	p.tick()
	once.Do(func() { close(gate) })

	p.Stop()
	p.Stop() // no-op
}
