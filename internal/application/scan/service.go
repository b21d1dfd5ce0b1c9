package scan

import (
	"context"
	"time"

	"github.com/khanhnv2901/headerscope/internal/checker"
	consts "github.com/khanhnv2901/headerscope/internal/shared/constants"
	"go.uber.org/zap"
)

// Fetcher retrieves the status code and headers of a target
type Fetcher interface {
	Fetch(ctx context.Context, target string) (*checker.FetchResult, error)
}

// Config wires the collaborators of a Service
type Config struct {
	Fetcher   Fetcher
	Evaluator *checker.Evaluator
	Timeout   time.Duration // reported to clients on timeout
	Logger    *zap.Logger
	Metrics   *Metrics
}

// Service normalizes a target, probes it and scores the response
type Service struct {
	fetcher   Fetcher
	evaluator *checker.Evaluator
	timeout   time.Duration
	logger    *zap.Logger
	metrics   *Metrics
}

// NewService creates a new scan service
func NewService(cfg Config) *Service {
	evaluator := cfg.Evaluator
	if evaluator == nil {
		evaluator = checker.NewEvaluator()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = consts.DefaultFetchTimeout
	}
	return &Service{
		fetcher:   cfg.Fetcher,
		evaluator: evaluator,
		timeout:   timeout,
		logger:    logger,
		metrics:   cfg.Metrics,
	}
}

// Analyze scans rawURL. Failures are returned as *Error.
func (s *Service) Analyze(ctx context.Context, rawURL string) (*checker.Assessment, error) {
	start := time.Now()

	target, err := checker.NormalizeTarget(rawURL)
	if err != nil {
		serr := targetError(err)
		s.metrics.recordFailure(serr.Kind, time.Since(start))
		return nil, serr
	}

	logger := s.logger.With(zap.String("target", target))

	res, err := s.fetcher.Fetch(ctx, target)
	if err != nil {
		serr := fetchError(checker.ClassifyFetchError(err), s.timeout)
		if serr.Kind == KindInternal {
			logger.Error("scan_failed", zap.String("kind", string(serr.Kind)), zap.Error(err))
		} else {
			logger.Warn("scan_failed", zap.String("kind", string(serr.Kind)), zap.Error(err))
		}
		s.metrics.recordFailure(serr.Kind, time.Since(start))
		return nil, serr
	}

	assessment := s.evaluator.Evaluate(checker.HeadersFromHTTP(res.Header), res.StatusCode, target)

	duration := time.Since(start)
	logger.Info("scan_complete",
		zap.String("host", checker.ExtractHost(target)),
		zap.Int("status_code", res.StatusCode),
		zap.Int("score", assessment.Score),
		zap.Bool("waf_suspected", assessment.WAFSuspected),
		zap.Duration("duration", duration),
	)
	s.metrics.recordSuccess(assessment, duration)

	return assessment, nil
}
