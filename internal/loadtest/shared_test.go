package loadtest

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSharedData_CopiesInputs(t *testing.T) {
	creds := []Credential{{Identity: "alice", Token: "t1"}, {Identity: "bob", Token: "t2"}}
	vars := map[string]string{"env": "staging"}

	d := NewSharedData(creds, vars)
	creds[0].Token = "mutated"
	vars["env"] = "mutated"

	assert.Equal(t, 2, d.Len())
	assert.Equal(t, "t1", d.Credentials()[0].Token)
	v, ok := d.Var("env")
	require.True(t, ok)
	assert.Equal(t, "staging", v)

	d.Credentials()[0].Token = "again"
	d.Vars()["env"] = "again"
	assert.Equal(t, "t1", d.Credentials()[0].Token)
	assert.Equal(t, "staging", d.Vars()["env"])
}

func TestSharedData_PickCredential(t *testing.T) {
	d := NewSharedData([]Credential{{Identity: "a"}, {Identity: "b"}, {Identity: "c"}}, nil)
	rng := rand.New(rand.NewSource(1))

	seen := make(map[string]int)
	for i := 0; i < 300; i++ {
		c, ok := d.PickCredential(rng)
		require.True(t, ok)
		seen[c.Identity]++
	}
	assert.Len(t, seen, 3)
	for id, n := range seen {
		assert.Greater(t, n, 50, "identity %s picked too rarely", id)
	}
}

func TestSharedData_Empty(t *testing.T) {
	var nilData *SharedData
	for _, d := range []*SharedData{nilData, NewSharedData(nil, nil)} {
		assert.Equal(t, 0, d.Len())
		assert.Empty(t, d.Credentials())
		assert.Empty(t, d.Vars())
		_, ok := d.PickCredential(rand.New(rand.NewSource(1)))
		assert.False(t, ok)
		_, ok = d.Var("x")
		assert.False(t, ok)
	}
}
