package peer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistryAddIsIdempotentByIdentity(t *testing.T) {
	r := NewRegistry(nil)
	assert.True(t, r.Add(Peer{IP: "10.0.0.1", Port: 9090}))
	assert.False(t, r.Add(Peer{IP: "10.0.0.1", Port: 9090, Alive: true}))
	assert.Len(t, r.List(), 1)
	assert.True(t, r.List()[0].Alive, "re-adding the same identity updates its fields")
}

func TestRegistryRemove(t *testing.T) {
	r := NewRegistry([]Peer{{IP: "10.0.0.1", Port: 9090}})
	assert.True(t, r.Remove(Key{IP: "10.0.0.1", Port: 9090}))
	assert.False(t, r.Remove(Key{IP: "10.0.0.1", Port: 9090}))
	assert.Empty(t, r.List())
}

func TestRegistryReplacePreservesOrder(t *testing.T) {
	r := NewRegistry([]Peer{{IP: "10.0.0.1", Port: 9090}})
	r.Replace([]Peer{
		{IP: "10.0.0.3", Port: 9090},
		{IP: "10.0.0.2", Port: 9090},
	})

	list := r.List()
	require := assert.New(t)
	require.Len(list, 2)
	require.Equal("10.0.0.3", list[0].IP)
	require.Equal("10.0.0.2", list[1].IP)
}

func TestLessOrdersByEpochThenIdentity(t *testing.T) {
	a := Peer{IP: "10.0.0.1", Port: 9090, Epoch: 1}
	b := Peer{IP: "10.0.0.2", Port: 9090, Epoch: 2}
	assert.True(t, Less(a, b))
	assert.False(t, Less(b, a))

	c := Peer{IP: "10.0.0.1", Port: 9090, Epoch: 1}
	d := Peer{IP: "10.0.0.2", Port: 9090, Epoch: 1}
	assert.True(t, Less(c, d))
}

func TestKeyIgnoresLivenessFields(t *testing.T) {
	a := Peer{IP: "10.0.0.1", Port: 9090, Alive: true, Epoch: 5}
	b := Peer{IP: "10.0.0.1", Port: 9090, Alive: false, Epoch: 9}
	assert.Equal(t, a.Key(), b.Key())
}
