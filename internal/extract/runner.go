package extract

import (
	"context"
	"sync"
	"time"
)

// Input is one file queued for extraction.
type Input struct {
	Source   string
	FileType string
	Data     []byte
}

// ExtractAll extracts independent files concurrently with a bounded worker
// pool. Results are reported in the caller-supplied input order regardless
// of completion order, so multi-file concatenation stays deterministic. Each
// file gets its own timeout; an expired file yields a failed Result, not a
// hung run. Unknown file types yield a failed Result carrying the
// UnsupportedFormatError text so callers can record the skip.
func ExtractAll(ctx context.Context, inputs []Input, concurrency int, perFileTimeout time.Duration) []Result {
	if concurrency < 1 {
		concurrency = 1
	}

	results := make([]Result, len(inputs))
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for i, input := range inputs {
		wg.Add(1)
		go func(idx int, in Input) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			results[idx] = extractOne(ctx, in, perFileTimeout)
		}(i, input)
	}

	wg.Wait()
	return results
}

func extractOne(ctx context.Context, in Input, perFileTimeout time.Duration) Result {
	extractor, err := Resolve(in.FileType)
	if err != nil {
		return failedResult(in.Source, NormalizeToken(in.FileType), err.Error())
	}

	if perFileTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, perFileTimeout)
		defer cancel()
	}

	done := make(chan Result, 1)
	go func() {
		done <- extractor.Extract(ctx, in.Data, in.Source)
	}()

	select {
	case result := <-done:
		return result
	case <-ctx.Done():
		return failedResult(in.Source, NormalizeToken(in.FileType), ctx.Err().Error())
	}
}
