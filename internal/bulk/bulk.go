// Package bulk runs a function over a batch of items on a bounded worker pool.
package bulk

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/term"
)

// Operation represents a bulk operation configuration. Every item runs; a
// failed item never stops the rest of the batch.
type Operation struct {
	Jobs int

	// Progress receives a progress bar when it is a terminal. Nil disables it.
	Progress io.Writer
}

// Result represents the result of a bulk operation
type Result struct {
	TotalItems int
	Succeeded  int
	Failed     int
	Errors     []ItemError
}

// ItemError represents an error for a specific item
type ItemError struct {
	Index int
	Error error
}

// ItemFunc is the function to execute for item i
type ItemFunc func(i int) error

// Execute runs fn for items 0..n-1. Errors are reported in index order
// whatever the completion order was.
func (op *Operation) Execute(n int, fn ItemFunc) *Result {
	result := &Result{
		TotalItems: n,
	}

	if n == 0 {
		return result
	}

	// Auto-detect CPU count if jobs == 0
	jobs := op.Jobs
	if jobs <= 0 {
		jobs = runtime.NumCPU()
	}
	if jobs > n {
		jobs = n
	}

	if jobs == 1 {
		return op.executeSequential(n, fn)
	}

	return op.executeParallel(n, fn, jobs)
}

// executeSequential processes items one by one
func (op *Operation) executeSequential(n int, fn ItemFunc) *Result {
	result := &Result{
		TotalItems: n,
	}
	showProgress := isTerminal(op.Progress)

	for i := 0; i < n; i++ {
		if showProgress {
			fmt.Fprintf(op.Progress, "\rProcessing %d/%d...", i+1, n)
		}

		if err := fn(i); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, ItemError{Index: i, Error: err})
			continue
		}
		result.Succeeded++
	}

	// Clear progress line
	if showProgress {
		fmt.Fprintf(op.Progress, "\r\033[K")
	}

	return result
}

// executeParallel processes items in parallel using a worker pool
func (op *Operation) executeParallel(n int, fn ItemFunc, workers int) *Result {
	result := &Result{
		TotalItems: n,
	}

	// Create work queue
	workQueue := make(chan int, n)
	for i := 0; i < n; i++ {
		workQueue <- i
	}
	close(workQueue)

	var (
		completed int32
		succeeded int32
		failed    int32
		errorsMux sync.Mutex
	)

	// Progress reporter
	var progressDone chan struct{}
	var progressWG sync.WaitGroup
	if isTerminal(op.Progress) {
		progressDone = make(chan struct{})
		progressWG.Add(1)
		go func() {
			defer progressWG.Done()
			ticker := time.NewTicker(100 * time.Millisecond)
			defer ticker.Stop()
			for {
				select {
				case <-progressDone:
					return
				case <-ticker.C:
					c := atomic.LoadInt32(&completed)
					s := atomic.LoadInt32(&succeeded)
					f := atomic.LoadInt32(&failed)
					pct := int(float64(c) / float64(n) * 100)
					fmt.Fprintf(op.Progress, "\rProcessing with %d workers... [%s] %d/%d (✓ %d ✗ %d)",
						workers, progressBar(pct, 20), c, n, s, f)
				}
			}
		}()
	}

	// Worker pool
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for i := range workQueue {
				err := fn(i)
				atomic.AddInt32(&completed, 1)

				if err != nil {
					atomic.AddInt32(&failed, 1)
					errorsMux.Lock()
					result.Errors = append(result.Errors, ItemError{Index: i, Error: err})
					errorsMux.Unlock()
				} else {
					atomic.AddInt32(&succeeded, 1)
				}
			}
		}()
	}

	wg.Wait()

	// Stop progress reporter
	if progressDone != nil {
		close(progressDone)
		progressWG.Wait()
		fmt.Fprintf(op.Progress, "\r\033[K") // Clear line
	}

	sort.Slice(result.Errors, func(i, j int) bool {
		return result.Errors[i].Index < result.Errors[j].Index
	})
	result.Succeeded = int(succeeded)
	result.Failed = int(failed)

	return result
}

// progressBar creates a simple ASCII progress bar
func progressBar(percent, width int) string {
	filled := percent * width / 100
	if filled > width {
		filled = width
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
