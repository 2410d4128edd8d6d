package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"

	"github.com/go-faster/errors"

	"github.com/xenking/kart-orders/internal/domain/voucher"
	"github.com/xenking/kart-orders/internal/storage/postgres"
)

// upserter is satisfied by *postgres.VoucherRepository.
type upserter interface {
	UpsertBatch(ctx context.Context, rules []voucher.Rule) error
}

func main() {
	var (
		dataDir     string
		pattern     string
		databaseURL string
		batchSize   int
		s           = scanner{fpr: 0.001, minLen: 8, maxLen: 10, progressEvery: 10_000_000}
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing the gzip code lists")
	flag.StringVar(&pattern, "pattern", "vouchers*.gz", "glob matching code lists inside data-dir")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&batchSize, "batch", 1000, "vouchers per upsert batch")
	flag.IntVar(&s.minFiles, "min-files", 2, "a code must appear in at least this many lists")
	flag.UintVar(&s.capacity, "bloom-capacity", 120_000_000, "expected codes per list")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, s, filepath.Join(dataDir, pattern), databaseURL, batchSize); err != nil {
		slog.Error("voucher ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("voucher ingest completed successfully")
}

func run(ctx context.Context, s scanner, glob, databaseURL string, batchSize int) error {
	files, err := filepath.Glob(glob)
	if err != nil {
		return errors.Wrapf(err, "glob %s", glob)
	}
	if len(files) == 0 {
		return errors.Errorf("no files match %s", glob)
	}
	slices.Sort(files)

	codes, err := s.Scan(ctx, files)
	if err != nil {
		return err
	}
	slog.Info("valid codes found", slog.Int("count", len(codes)))
	if len(codes) == 0 {
		return nil
	}

	slog.Info("connecting to database")
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	return writeVouchers(ctx, postgres.NewVoucherRepository(pool), codes, batchSize)
}

// writeVouchers upserts codes in sorted batches.
func writeVouchers(ctx context.Context, repo upserter, codes []string, batchSize int) error {
	if batchSize <= 0 {
		batchSize = 1000
	}
	slices.Sort(codes)
	slog.Info("writing vouchers to database", slog.Int("count", len(codes)))

	written := 0
	for batch := range slices.Chunk(codes, batchSize) {
		rules := make([]voucher.Rule, len(batch))
		for i, code := range batch {
			rules[i] = ruleFor(strings.ToUpper(code))
		}
		if err := repo.UpsertBatch(ctx, rules); err != nil {
			return errors.Wrapf(err, "upsert batch starting at %s", batch[0])
		}
		written += len(batch)
		slog.Info("write progress", slog.Int("written", written), slog.Int("total", len(codes)))
	}
	return nil
}
