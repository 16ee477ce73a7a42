package repertoire

import (
	"runtime"
	"sync"
)

// WorkItem is one export file to read.
type WorkItem struct {
	Seq  int
	Path string
}

// WorkResult holds the outcome of reading one file.
type WorkResult struct {
	Seq    int
	Path   string
	Result *Result
	Err    error
}

// ParallelRead reads work items using a pool of workers. Results arrive in
// completion order; use OrderedCollect to consume them in sequence order.
// If workers is 0, runtime.NumCPU() is used.
func (r *Reader) ParallelRead(items <-chan WorkItem, workers int) <-chan WorkResult {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	results := make(chan WorkResult, 2*workers)

	var wg sync.WaitGroup
	wg.Add(workers)

	for range workers {
		go func() {
			defer wg.Done()
			for item := range items {
				res, err := r.Read(item.Path)
				results <- WorkResult{
					Seq:    item.Seq,
					Path:   item.Path,
					Result: res,
					Err:    err,
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	return results
}

// OrderedCollect calls fn for each result in sequence-number order.
// Out-of-order results wait in a pending map until their turn.
// Blocks until the results channel is closed.
func OrderedCollect(results <-chan WorkResult, fn func(WorkResult) error) error {
	pending := make(map[int]WorkResult)
	nextSeq := 0

	for res := range results {
		pending[res.Seq] = res

		for {
			rr, ok := pending[nextSeq]
			if !ok {
				break
			}
			delete(pending, nextSeq)
			nextSeq++
			if err := fn(rr); err != nil {
				// Drain remaining results to unblock workers.
				for range results {
				}
				return err
			}
		}
	}

	return nil
}

// ReadAll reads several exports concurrently and returns their results in
// the order of paths. The first error in path order is returned.
func (r *Reader) ReadAll(paths []string, workers int) ([]*Result, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	workers = min(workers, max(len(paths), 1))

	items := make(chan WorkItem, len(paths))
	for i, p := range paths {
		items <- WorkItem{Seq: i, Path: p}
	}
	close(items)

	out := make([]*Result, 0, len(paths))
	err := OrderedCollect(r.ParallelRead(items, workers), func(wr WorkResult) error {
		if wr.Err != nil {
			return wr.Err
		}
		out = append(out, wr.Result)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
