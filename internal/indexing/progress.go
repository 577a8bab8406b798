package indexing

import (
	"fmt"
	"math"
	"sync"
)

// Progress is reported once per finished parse job.
type Progress struct {
	Path    string // relative to the project root
	Done    int
	Total   int
	Percent int
	Entries int // tokens in the job's result
}

func (p Progress) String() string {
	return fmt.Sprintf("[%3d%%] Tagged %s %d/%d. %d entries.", p.Percent, p.Path, p.Done, p.Total, p.Entries)
}

var closedChan = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// jobCounter tracks the current wave of parse jobs and the number of
// asynchronous operations whose completion has not been handled yet.
type jobCounter struct {
	mu          sync.Mutex
	total       int
	outstanding int

	busy int
	idle chan struct{}
}

func (jc *jobCounter) startParse() {
	jc.mu.Lock()
	defer jc.mu.Unlock()
	jc.total++
	jc.outstanding++
	jc.busy++
}

// finishParse accounts one parse job and returns the progress line for it.
// The wave resets once nothing is outstanding.
func (jc *jobCounter) finishParse(path string, entries int) Progress {
	jc.mu.Lock()
	defer jc.mu.Unlock()
	jc.outstanding--
	done := jc.total - jc.outstanding
	p := Progress{
		Path:    path,
		Done:    done,
		Total:   jc.total,
		Entries: entries,
	}
	if jc.total > 0 {
		p.Percent = int(math.Round(float64(done) / float64(jc.total) * 100))
	}
	if jc.outstanding == 0 {
		jc.total = 0
	}
	return p
}

// cancelParse undoes startParse for a job that never ran.
func (jc *jobCounter) cancelParse() {
	jc.mu.Lock()
	jc.total--
	jc.outstanding--
	if jc.outstanding == 0 {
		jc.total = 0
	}
	jc.mu.Unlock()
	jc.done()
}

func (jc *jobCounter) start() {
	jc.mu.Lock()
	jc.busy++
	jc.mu.Unlock()
}

// done marks one operation handled.
func (jc *jobCounter) done() {
	jc.mu.Lock()
	defer jc.mu.Unlock()
	jc.busy--
	if jc.busy == 0 && jc.idle != nil {
		close(jc.idle)
		jc.idle = nil
	}
}

// idleChan is closed once no operation is pending.
func (jc *jobCounter) idleChan() <-chan struct{} {
	jc.mu.Lock()
	defer jc.mu.Unlock()
	if jc.busy == 0 {
		return closedChan
	}
	if jc.idle == nil {
		jc.idle = make(chan struct{})
	}
	return jc.idle
}

func (jc *jobCounter) snapshot() (total, outstanding int) {
	jc.mu.Lock()
	defer jc.mu.Unlock()
	return jc.total, jc.outstanding
}
