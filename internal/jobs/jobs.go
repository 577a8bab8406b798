package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/standardbeagle/grtags/internal/types"
)

// Flags modify how a parse result is merged.
type Flags uint8

const (
	None Flags = 0
	// Dirty means the file was indexed before, so its old tag entries must be
	// invalidated before the new ones are merged.
	Dirty Flags = 1
)

// Has reports whether every bit of o is set in f.
func (f Flags) Has(o Flags) bool {
	return f&o == o && o != 0
}

func (f Flags) String() string {
	if f.Has(Dirty) {
		return "dirty"
	}
	return "none"
}

// Scanner discovers the files under root. The boolean marks whether a file
// is indexable (handed to the parser) or only tracked.
type Scanner interface {
	Scan(ctx context.Context, root string) (map[string]bool, error)
}

// Parser extracts tags from the file at path, recording id in every location.
type Parser interface {
	Parse(ctx context.Context, path string, id types.FileID) (types.Tags, error)
}

// ScanResult is delivered when a ScanJob finishes.
type ScanResult struct {
	Root     string
	Paths    map[string]bool
	Err      error
	Duration time.Duration
}

// ScanJob walks a project root.
type ScanJob struct {
	root    string
	scanner Scanner
	once    sync.Once
	done    chan ScanResult
}

// NewScanJob creates a scan of root.
func NewScanJob(root string, scanner Scanner) *ScanJob {
	return &ScanJob{root: root, scanner: scanner, done: make(chan ScanResult, 1)}
}

// Root returns the scanned directory.
func (j *ScanJob) Root() string {
	return j.root
}

// Run implements Job.
func (j *ScanJob) Run(ctx context.Context) {
	if err := ctx.Err(); err != nil {
		j.finish(ScanResult{Root: j.root, Err: err})
		return
	}
	start := time.Now()
	paths, err := j.scanner.Scan(ctx, j.root)
	j.finish(ScanResult{Root: j.root, Paths: paths, Err: err, Duration: time.Since(start)})
}

// Done delivers the result once.
func (j *ScanJob) Done() <-chan ScanResult {
	return j.done
}

func (j *ScanJob) finish(r ScanResult) {
	j.once.Do(func() { j.done <- r })
}

// ParseResult is delivered when a ParseJob finishes.
type ParseResult struct {
	Path  string
	ID    types.FileID
	Flags Flags
	// Started is the job start time in nanoseconds since the Unix epoch. A file
	// modified after this instant may not be reflected in Tags.
	Started int64
	Tags    types.Tags
	Err     error
}

// ParseJob extracts tags from one file.
type ParseJob struct {
	path   string
	id     types.FileID
	flags  Flags
	parser Parser
	clock  func() time.Time
	once   sync.Once
	done   chan ParseResult
}

// NewParseJob creates a parse of path. A nil clock uses time.Now.
func NewParseJob(path string, id types.FileID, flags Flags, parser Parser, clock func() time.Time) *ParseJob {
	if clock == nil {
		clock = time.Now
	}
	return &ParseJob{
		path:   path,
		id:     id,
		flags:  flags,
		parser: parser,
		clock:  clock,
		done:   make(chan ParseResult, 1),
	}
}

// Path returns the file being parsed.
func (j *ParseJob) Path() string {
	return j.path
}

// Flags returns the merge flags of the job.
func (j *ParseJob) Flags() Flags {
	return j.flags
}

// Run implements Job. The start timestamp is taken before the file is read.
func (j *ParseJob) Run(ctx context.Context) {
	started := j.clock().UnixNano()
	res := ParseResult{Path: j.path, ID: j.id, Flags: j.flags, Started: started}
	if err := ctx.Err(); err != nil {
		res.Err = err
		j.finish(res)
		return
	}
	res.Tags, res.Err = j.parser.Parse(ctx, j.path, j.id)
	j.finish(res)
}

// Done delivers the result once.
func (j *ParseJob) Done() <-chan ParseResult {
	return j.done
}

func (j *ParseJob) finish(r ParseResult) {
	j.once.Do(func() { j.done <- r })
}
