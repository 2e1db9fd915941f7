package loadtest

import "math/rand"

// Credential is an authenticated identity.
type Credential struct {
	Identity string
	Token    string
}

// SharedData is the immutable result of setup, handed to every virtual
// user. All accessors return copies, so readers need no locking.
type SharedData struct {
	credentials []Credential
	vars        map[string]string
}

// NewSharedData copies creds and vars into a new SharedData.
func NewSharedData(creds []Credential, vars map[string]string) *SharedData {
	d := &SharedData{
		credentials: make([]Credential, len(creds)),
		vars:        make(map[string]string, len(vars)),
	}
	copy(d.credentials, creds)
	for k, v := range vars {
		d.vars[k] = v
	}
	return d
}

// Len returns the size of the credential pool.
func (d *SharedData) Len() int {
	if d == nil {
		return 0
	}
	return len(d.credentials)
}

// Credentials returns the pool in setup order.
func (d *SharedData) Credentials() []Credential {
	if d == nil {
		return nil
	}
	out := make([]Credential, len(d.credentials))
	copy(out, d.credentials)
	return out
}

// PickCredential selects a credential uniformly at random. ok is false when
// the pool is empty.
func (d *SharedData) PickCredential(rng *rand.Rand) (Credential, bool) {
	n := d.Len()
	if n == 0 {
		return Credential{}, false
	}
	return d.credentials[rng.Intn(n)], true
}

// Var returns a variable produced by setup.
func (d *SharedData) Var(name string) (string, bool) {
	if d == nil {
		return "", false
	}
	v, ok := d.vars[name]
	return v, ok
}

// Vars returns a copy of the setup variables.
func (d *SharedData) Vars() map[string]string {
	out := make(map[string]string)
	if d == nil {
		return out
	}
	for k, v := range d.vars {
		out[k] = v
	}
	return out
}
