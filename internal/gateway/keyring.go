package gateway

import "sync/atomic"

// keyring hands out the order in which API keys are tried for one request.
// In fixed mode every request starts at the first key; in round-robin mode
// the starting key advances with each request.
type keyring struct {
	keys []string
	mode RotationMode
	next atomic.Uint64
}

func newKeyring(keys []string, mode RotationMode) *keyring {
	return &keyring{keys: keys, mode: mode}
}

func (k *keyring) empty() bool {
	return len(k.keys) == 0
}

// order returns the keys in try order for a single request. Every key
// appears exactly once; rotation on failure walks this slice.
func (k *keyring) order() []string {
	n := len(k.keys)
	if n == 0 {
		return nil
	}

	start := 0
	if k.mode == ModeRoundRobin {
		start = int(k.next.Add(1)-1) % n
	}

	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, k.keys[(start+i)%n])
	}
	return out
}
