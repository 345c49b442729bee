package netwatch

// Watcher supplies the client's best-effort local connectivity signal.
type Watcher interface {
	// IsAvailable is the point-in-time reachability check used to gate
	// outbound requests.
	IsAvailable() bool

	// Observe returns a stream of online/offline transitions. The stream
	// is edge-triggered: a value is emitted only when reachability flips.
	// The returned cancel func detaches the subscriber.
	Observe() (<-chan bool, func())
}
