package batch

import (
	"fmt"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/go-bpf/verifier/pkg/loader"
	"github.com/go-bpf/verifier/pkg/verifier"
)

// Task is one fixture file waiting to be verified.
type Task struct {
	Path string
}

// WorkerPool runs a fixed number of goroutines pulling Tasks off a
// channel, each verifying its fixture with its own *verifier.Analyzer so
// concurrent verifications never share an id-generator mutex (§5: one
// Analyzer per invocation). Progress is reported on a ticker the same way
// the teacher's search worker pool reports throughput during a long run.
type WorkerPool struct {
	Workers  int
	LogLevel int
}

// RunDir verifies every fixture file in paths concurrently and returns the
// accumulated verdict table.
func (p *WorkerPool) RunDir(paths []string) *Table {
	workers := p.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	tasks := make(chan Task, len(paths))
	for _, path := range paths {
		tasks <- Task{Path: path}
	}
	close(tasks)

	table := NewTable()
	var done int64
	total := int64(len(paths))

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	stopProgress := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				logrus.WithFields(logrus.Fields{
					"done":  atomic.LoadInt64(&done),
					"total": total,
				}).Info("batch verification progress")
			case <-stopProgress:
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range tasks {
				table.Add(p.verifyOne(t.Path))
				atomic.AddInt64(&done, 1)
			}
		}()
	}
	wg.Wait()
	close(stopProgress)

	return table
}

func (p *WorkerPool) verifyOne(path string) Verdict {
	name := filepath.Base(path)
	prog, err := loader.LoadFile(path)
	if err != nil {
		return Verdict{Fixture: name, Accepted: false, Err: fmt.Errorf("load: %w", err)}
	}

	a := verifier.NewAnalyzer(p.LogLevel)
	result, err := a.Check(prog)
	if err != nil {
		return Verdict{Fixture: name, Accepted: false, Err: err}
	}
	return Verdict{Fixture: name, Accepted: true, Log: result.Log, StatesSeen: result.StatesSeen}
}
