// Package extract finds raw logo candidates in a parsed homepage. Each
// extractor reads one kind of signal; Run executes them concurrently and
// contains their failures.
package extract

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/logohunter/internal/candidate"
	"github.com/JakeFAU/logohunter/internal/document"
	"github.com/JakeFAU/logohunter/internal/fetcher"
)

// Extractor produces raw candidates from one signal source.
type Extractor interface {
	Name() string
	Extract(ctx context.Context, doc *document.Document) ([]candidate.Candidate, error)
}

// Config tunes the default extractor set.
type Config struct {
	ManifestTimeout time.Duration
	FallbackPaths   []string
	// Sources names the extractors to run; empty means all of them.
	Sources []string
}

// Default returns the standard extractors in a fixed order, restricted to
// cfg.Sources when set.
func Default(f fetcher.Fetcher, cfg Config) []Extractor {
	all := []Extractor{
		&Manifest{Fetcher: f, Timeout: cfg.ManifestTimeout},
		AppleTouchIcon{},
		Favicon{},
		SocialMeta{},
		DomHeuristic{},
		FallbackPaths{Paths: cfg.FallbackPaths},
	}
	if len(cfg.Sources) == 0 {
		return all
	}
	var out []Extractor
	for _, ex := range all {
		if slices.Contains(cfg.Sources, ex.Name()) {
			out = append(out, ex)
		}
	}
	return out
}

// Names lists the names accepted in Config.Sources.
func Names() []string {
	return []string{"manifest", "apple_touch_icon", "favicon", "social_meta", "dom_heuristic", "fallback_paths"}
}

// Run executes every extractor concurrently against doc. An extractor that
// errors or panics contributes no candidates. Raw candidates that break the
// candidate invariants are dropped. Output order follows the extractor order.
func Run(ctx context.Context, doc *document.Document, extractors []Extractor, logger *zap.Logger) []candidate.Candidate {
	if logger == nil {
		logger = zap.NewNop()
	}
	results := make([][]candidate.Candidate, len(extractors))

	var wg sync.WaitGroup
	for i, ex := range extractors {
		wg.Add(1)
		go func() {
			defer wg.Done()
			found, err := runOne(ctx, ex, doc)
			if err != nil {
				logger.Warn("Extractor failed",
					zap.String("extractor", ex.Name()),
					zap.Error(err),
				)
				return
			}
			results[i] = found
		}()
	}
	wg.Wait()

	var out []candidate.Candidate
	for i, found := range results {
		for _, c := range found {
			if err := c.Validate(); err != nil {
				logger.Debug("Dropping invalid candidate",
					zap.String("extractor", extractors[i].Name()),
					zap.Error(err),
				)
				continue
			}
			out = append(out, c)
		}
	}
	return out
}

func runOne(ctx context.Context, ex Extractor, doc *document.Document) (found []candidate.Candidate, err error) {
	defer func() {
		if r := recover(); r != nil {
			found = nil
			err = fmt.Errorf("extractor %s panicked: %v", ex.Name(), r)
		}
	}()
	return ex.Extract(ctx, doc)
}

// sizeOrFilename returns the declared size, falling back to an NxN token in
// the file name.
func sizeOrFilename(declared candidate.Size, rawURL string) candidate.Size {
	if !declared.IsZero() {
		return declared
	}
	if s, ok := candidate.SizeFromFilename(rawURL); ok {
		return s
	}
	return candidate.Size{}
}
