package seal

import (
	"archive/zip"
	"context"
	"fmt"
	"image"
	"runtime"
	"sort"
	"sync"
)

// WriteArchive renders a seal for every code and writes them to w as a ZIP
// with one <code>.png entry per unit. Rendering runs on a bounded worker
// pool; entries are written in ascending code order regardless, so the
// archive bytes are reproducible for a given code set and background.
// Returns the number of seals whose watermark embed degraded.
func WriteArchive(ctx context.Context, w *zip.Writer, unitCodes []string, background image.Image) (int, error) {
	sorted := make([]string, len(unitCodes))
	copy(sorted, unitCodes)
	sort.Strings(sorted)

	seals := make([]*Seal, len(sorted))
	sem := make(chan struct{}, runtime.GOMAXPROCS(0))

	var wg sync.WaitGroup
	var mu sync.Mutex
	var renderErr error

	for i, code := range sorted {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(i int, code string) {
			defer wg.Done()
			defer func() { <-sem }()

			s, err := Render(code, background)
			if err != nil {
				mu.Lock()
				if renderErr == nil {
					renderErr = err
				}
				mu.Unlock()
				return
			}
			seals[i] = s
		}(i, code)
	}
	wg.Wait()

	if renderErr != nil {
		return 0, fmt.Errorf("rendering seals: %w", renderErr)
	}

	degraded := 0
	for i, code := range sorted {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		f, err := w.Create(code + ".png")
		if err != nil {
			return 0, fmt.Errorf("creating archive entry for %s: %w", code, err)
		}
		if _, err := f.Write(seals[i].PNG); err != nil {
			return 0, fmt.Errorf("writing archive entry for %s: %w", code, err)
		}
		if seals[i].Degraded {
			degraded++
		}
	}

	return degraded, nil
}
