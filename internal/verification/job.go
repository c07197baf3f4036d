package verification

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/mobile-money-service/internal/interfaces"
	"github.com/akylbek/payment-system/mobile-money-service/internal/metrics"
	"github.com/akylbek/payment-system/mobile-money-service/internal/models"
)

type JobConfig struct {
	Interval   time.Duration
	BatchSize  int
	BatchPause time.Duration
	// StartDelay postpones the pass that Start runs immediately.
	StartDelay time.Duration
}

// PassResult summarises one verification pass.
type PassResult struct {
	Pending   int `json:"pending"`
	Eligible  int `json:"eligible"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Expired   int `json:"expired"`
	Skipped   int `json:"skipped"`
	Errors    int `json:"errors"`
}

// Job periodically re-verifies pending payments.
type Job struct {
	repo     interfaces.PaymentRepository
	verifier *Verifier
	metrics  *metrics.Metrics
	logger   *zap.Logger
	cfg      JobConfig

	mu       sync.Mutex
	running  bool
	cron     *cron.Cron
	inflight *sync.WaitGroup
	cancel   chan struct{}
}

func NewJob(repo interfaces.PaymentRepository, verifier *Verifier, m *metrics.Metrics, logger *zap.Logger, cfg JobConfig) *Job {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Minute
	}
	return &Job{
		repo:     repo,
		verifier: verifier,
		metrics:  m,
		logger:   logger,
		cfg:      cfg,
	}
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	sugar *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, append(keysAndValues, "error", err)...)
}

// Start schedules the job and runs one pass right away. It returns false if
// the job was already running.
func (j *Job) Start() bool {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.running {
		return false
	}

	logger := cronLogger{sugar: j.logger.Sugar()}
	tick := cron.NewChain(
		cron.Recover(logger),
		cron.SkipIfStillRunning(logger),
	).Then(cron.FuncJob(j.tick))

	c := cron.New(cron.WithLogger(logger))
	c.Schedule(cron.Every(j.cfg.Interval), tick)
	c.Start()

	inflight := &sync.WaitGroup{}
	cancel := make(chan struct{})
	inflight.Add(1)
	go func() {
		defer inflight.Done()
		if j.cfg.StartDelay > 0 {
			timer := time.NewTimer(j.cfg.StartDelay)
			defer timer.Stop()
			select {
			case <-cancel:
				return
			case <-timer.C:
			}
		}
		tick.Run()
	}()

	j.cron = c
	j.inflight = inflight
	j.cancel = cancel
	j.running = true

	j.logger.Info("Verification job started",
		zap.Duration("interval", j.cfg.Interval),
		zap.Int("batch_size", j.cfg.BatchSize),
	)
	return true
}

// Stop halts the schedule. The returned context is done once passes already
// in flight have finished; they are not cancelled.
func (j *Job) Stop() context.Context {
	j.mu.Lock()
	defer j.mu.Unlock()

	done, finish := context.WithCancel(context.Background())
	if !j.running {
		finish()
		return done
	}

	cronDone := j.cron.Stop()
	inflight := j.inflight
	close(j.cancel)

	j.running = false
	j.cron = nil
	j.inflight = nil
	j.cancel = nil

	go func() {
		<-cronDone.Done()
		inflight.Wait()
		finish()
	}()

	j.logger.Info("Verification job stopped")
	return done
}

func (j *Job) IsRunning() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.running
}

func (j *Job) tick() {
	result := j.RunPass(context.Background())
	if result.Eligible > 0 || result.Errors > 0 {
		j.logger.Info("Verification pass finished",
			zap.Int("pending", result.Pending),
			zap.Int("eligible", result.Eligible),
			zap.Int("completed", result.Completed),
			zap.Int("failed", result.Failed),
			zap.Int("expired", result.Expired),
			zap.Int("skipped", result.Skipped),
			zap.Int("errors", result.Errors),
		)
	}
}

// RunPass verifies every eligible pending payment once, in discovery order and
// in batches. A failure on one payment never stops the pass.
func (j *Job) RunPass(ctx context.Context) PassResult {
	var result PassResult
	start := time.Now()
	defer func() { j.metrics.ObservePass(time.Since(start)) }()

	pending, err := j.repo.ListPending(ctx)
	if err != nil {
		j.logger.Error("Failed to list pending payments", zap.Error(err))
		result.Errors++
		return result
	}
	result.Pending = len(pending)

	policy := j.verifier.Policy()
	now := j.verifier.Now()
	var eligible []*models.MobileMoneyPayment
	for _, p := range pending {
		if policy.IsEligible(p, now) {
			eligible = append(eligible, p)
		}
	}
	result.Eligible = len(eligible)

	for i := 0; i < len(eligible); i += j.cfg.BatchSize {
		end := i + j.cfg.BatchSize
		if end > len(eligible) {
			end = len(eligible)
		}

		for _, p := range eligible[i:end] {
			j.verifyOne(ctx, p, &result)
		}

		if end < len(eligible) && j.cfg.BatchPause > 0 {
			timer := time.NewTimer(j.cfg.BatchPause)
			select {
			case <-ctx.Done():
				timer.Stop()
				return result
			case <-timer.C:
			}
		}
	}
	return result
}

func (j *Job) verifyOne(ctx context.Context, payment *models.MobileMoneyPayment, result *PassResult) {
	defer func() {
		if r := recover(); r != nil {
			result.Errors++
			j.logger.Error("Panic while verifying payment",
				zap.String("payment_id", payment.ID),
				zap.Error(fmt.Errorf("%v", r)),
			)
		}
	}()

	updated, err := j.verifier.Verify(ctx, payment.ID)
	switch {
	case errors.Is(err, ErrVerificationInProgress):
		result.Skipped++
		return
	case err != nil:
		result.Errors++
		j.logger.Error("Failed to verify payment",
			zap.String("payment_id", payment.ID),
			zap.Error(err),
		)
		return
	}

	switch updated.Status {
	case models.StatusCompleted:
		result.Completed++
	case models.StatusFailed:
		result.Failed++
	case models.StatusExpired:
		result.Expired++
	}
}
