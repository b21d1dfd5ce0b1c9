package application

import (
	"fmt"
	"time"

	scanapp "github.com/khanhnv2901/headerscope/internal/application/scan"
	"github.com/khanhnv2901/headerscope/internal/checker"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Options configures the service container
type Options struct {
	FetchTimeout time.Duration
	WAFDetection bool
	Logger       *zap.Logger
	Registerer   prometheus.Registerer // nil disables scan metrics
}

// Container holds all application services
// This is a simple dependency injection container
type Container struct {
	Fetcher     *checker.Fetcher
	Evaluator   *checker.Evaluator
	ScanService *scanapp.Service
}

// NewContainer creates a new application service container
func NewContainer(opts Options) (*Container, error) {
	fetcher, err := checker.NewFetcher(opts.FetchTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to create fetcher: %w", err)
	}

	evaluator := checker.NewEvaluator()
	if !opts.WAFDetection {
		evaluator.WAF = nil
	}

	var metrics *scanapp.Metrics
	if opts.Registerer != nil {
		metrics = scanapp.NewMetrics(opts.Registerer)
	}

	scanService := scanapp.NewService(scanapp.Config{
		Fetcher:   fetcher,
		Evaluator: evaluator,
		Timeout:   fetcher.Timeout,
		Logger:    opts.Logger,
		Metrics:   metrics,
	})

	return &Container{
		Fetcher:     fetcher,
		Evaluator:   evaluator,
		ScanService: scanService,
	}, nil
}
