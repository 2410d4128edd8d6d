package main

import (
	"bufio"
	"context"
	"log/slog"
	"math/bits"
	"os"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"
)

// maxFiles is bounded by the per-code file bitmask.
const maxFiles = bits.UintSize

// scanner finds the codes that appear in at least minFiles of a set of
// gzip-compressed code lists, one code per line.
type scanner struct {
	capacity      uint
	fpr           float64
	minLen        int
	maxLen        int
	minFiles      int
	progressEvery uint64
}

func (s scanner) accept(code string) bool {
	return len(code) >= s.minLen && len(code) <= s.maxLen
}

// Scan runs two passes: one bloom filter per file, then an exact pass that
// records, for every code found in some other file's filter, the file it was
// read from. Bloom false positives only set the bit of the file being read,
// so a code's popcount is exactly the number of files containing it.
func (s scanner) Scan(ctx context.Context, files []string) ([]string, error) {
	if len(files) > maxFiles {
		return nil, errors.Errorf("at most %d files are supported, got %d", maxFiles, len(files))
	}
	if s.minFiles < 2 || s.minFiles > len(files) {
		return nil, errors.Errorf("min files must be within [2, %d], got %d", len(files), s.minFiles)
	}

	slog.Info("pass 1: building bloom filters", slog.Int("files", len(files)))
	filters, err := s.buildFilters(ctx, files)
	if err != nil {
		return nil, errors.Wrap(err, "build bloom filters")
	}

	slog.Info("pass 2: finding candidate codes")
	masks, err := s.findCandidates(ctx, files, filters)
	if err != nil {
		return nil, errors.Wrap(err, "find candidates")
	}

	merged := make(map[string]uint)
	for _, m := range masks {
		for code, bit := range m {
			merged[code] |= bit
		}
	}
	var codes []string
	for code, mask := range merged {
		if bits.OnesCount(mask) >= s.minFiles {
			codes = append(codes, code)
		}
	}
	return codes, nil
}

func (s scanner) buildFilters(ctx context.Context, files []string) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(s.capacity, s.fpr)
			var count uint64
			err := streamGzFile(ctx, path, func(code string) {
				if !s.accept(code) {
					return
				}
				filter.AddString(code)
				count++
				s.progress("pass 1 progress", i, count)
			})
			if err != nil {
				return errors.Wrapf(err, "build filter for file %d", i+1)
			}
			slog.Info("pass 1 complete", slog.Int("file", i+1), slog.Uint64("total_codes", count))
			filters[i] = filter
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

func (s scanner) findCandidates(ctx context.Context, files []string, filters []*bloom.BloomFilter) ([]map[string]uint, error) {
	results := make([]map[string]uint, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			candidates := make(map[string]uint)
			fileBit := uint(1) << uint(i)
			var count uint64

			err := streamGzFile(ctx, path, func(code string) {
				if !s.accept(code) {
					return
				}
				count++
				s.progress("pass 2 progress", i, count)

				for j, f := range filters {
					if j != i && f.TestString(code) {
						candidates[code] |= fileBit
						return
					}
				}
			})
			if err != nil {
				return errors.Wrapf(err, "scan file %d for candidates", i+1)
			}
			slog.Info("pass 2 complete",
				slog.Int("file", i+1),
				slog.Uint64("total_codes", count),
				slog.Int("candidates", len(candidates)),
			)
			results[i] = candidates
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (s scanner) progress(msg string, file int, count uint64) {
	if s.progressEvery > 0 && count%s.progressEvery == 0 {
		slog.Info(msg, slog.Int("file", file+1), slog.Uint64("codes", count))
	}
}

// streamGzFile opens a gzip-compressed file and calls fn for each line.
func streamGzFile(ctx context.Context, path string, fn func(code string)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	sc := bufio.NewScanner(gz)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		fn(sc.Text())
	}
	if err := sc.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}
