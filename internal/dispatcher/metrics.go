package dispatcher

// Request and replication outcome labels.
const (
	OutcomeOK         = "ok"
	OutcomeInvalid    = "invalid"
	OutcomeNoServer   = "no_server"
	OutcomeConnFailed = "conn_failed"
)

// Announcement result labels.
const (
	AnnounceAdded     = "added"
	AnnounceDuplicate = "duplicate"
	AnnounceFull      = "capacity_exceeded"
	AnnounceCollision = "hash_collision"
	AnnounceInvalid   = "invalid"
)

// Metrics receives dispatcher events. Implementations must be safe for
// concurrent use; metrics.Dispatcher exports them to Prometheus.
type Metrics interface {
	Request(command, outcome string)
	Replication(command, outcome string)
	Announcement(result string)
	Removal()
	Members(n int)
}

// NoopMetrics discards every event.
type NoopMetrics struct{}

func (NoopMetrics) Request(string, string)     {}
func (NoopMetrics) Replication(string, string) {}
func (NoopMetrics) Announcement(string)        {}
func (NoopMetrics) Removal()                   {}
func (NoopMetrics) Members(int)                {}
