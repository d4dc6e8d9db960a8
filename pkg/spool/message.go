package spool

import "github.com/wayneeseguin/spool/pkg/features"

type messageKind int

const (
	kindEntry messageKind = iota
	kindFlush
	kindRotate
	kindSync
	kindStatus
	kindShutdown
)

// message is one unit of work for the sink worker. Ownership passes to the
// worker on submission.
type message struct {
	kind   messageKind
	text   string
	reply  chan error  // kindSync
	status chan Status // kindStatus
}

// Status is a snapshot of the worker state.
type Status struct {
	Path      string             `json:"path"`
	FileSize  int64              `json:"file_size"`  // logical bytes in the current generation
	BufferLen int                `json:"buffer_len"` // bytes waiting to be flushed
	BufferCap int                `json:"buffer_cap"`
	Archives  []features.Archive `json:"archives"` // oldest first
	Breaker   string             `json:"breaker"`  // write circuit state
	Stopped   bool               `json:"stopped"`
}
