package memo

// ClearReason explains why a cache was emptied.
type ClearReason int

const (
	// ClearExplicit: EmptyCache on one identity or selector.
	ClearExplicit ClearReason = iota
	// ClearRedefinition: a top-level re-registration replaced the implementation.
	ClearRedefinition
	// ClearAll: EmptyAllCaches.
	ClearAll
)

func (r ClearReason) String() string {
	switch r {
	case ClearRedefinition:
		return "redefinition"
	case ClearAll:
		return "all"
	default:
		return "explicit"
	}
}

// Metrics receives registry-level signals, labelled by identity name.
// NoopMetrics is used by default.
type Metrics interface {
	Hit(name string)
	Miss(name string)
	Failure(name string)
	Clear(name string, reason ClearReason)
	// Identities reports the number of identities bound to a constructor.
	Identities(static, dynamic int)
}

// NoopMetrics discards every signal.
type NoopMetrics struct{}

func (NoopMetrics) Hit(string)                {}
func (NoopMetrics) Miss(string)               {}
func (NoopMetrics) Failure(string)            {}
func (NoopMetrics) Clear(string, ClearReason) {}
func (NoopMetrics) Identities(int, int)       {}

var _ Metrics = NoopMetrics{}
