package submitter

import (
	"context"
	"fmt"
	"strconv"

	"github.com/wangicheng/orange-juice/pkg/accountpool"
	"github.com/wangicheng/orange-juice/pkg/metrics"
	"github.com/wangicheng/orange-juice/pkg/model"
	"github.com/wangicheng/orange-juice/pkg/retry"
)

// MaxSubmissionAttempts is the per-probe retry budget: a single probe
// retries up to 3 times, rotating to the next account in the pool
// between attempts.
const MaxSubmissionAttempts = 3

// Recorder persists a discovered test case, keyed by problem. Implemented
// by pkg/repository.TestCaseRepository.
type Recorder interface {
	FoundTestcase(ctx context.Context, problemID int64, content string) error
}

// Live is the production Submitter: it renders the problem's code
// templates and submits them through a leased account's judge session,
// returning the raw judged memory reading uninterpreted. Decoding that
// reading through the calibrated regression Model is the Crawler Core's
// job (pkg/crawler.Core.decode), not the Submitter's — keeping exactly
// one place that owns the fitted model, so a checkpoint-resumed Core
// always decodes with its own rehydrated coefficients regardless of which
// Submitter implementation is in front of it. Grounded on
// original_source/orange-juice-backend/crawler/core/crawler_core.py's
// CrawlTestCasesSubmitter, whose five protocol methods map 1:1 onto the
// Submitter interface.
type Live struct {
	problem    model.Problem
	language   string
	templates  model.CodeTemplateSet
	headerCode string
	footerCode string
	lease      *accountpool.Lease
	recorder   Recorder
}

// NewLive builds a Live submitter bound to one problem, one source
// language, one validated account lease, and an optional caller-supplied
// header/footer (CrawlTask.HeaderCode/FooterCode) wrapped around every
// rendered template body.
func NewLive(problem model.Problem, language string, templates model.CodeTemplateSet, headerCode, footerCode string, lease *accountpool.Lease, recorder Recorder) *Live {
	return &Live{
		problem:    problem,
		language:   language,
		templates:  templates,
		headerCode: headerCode,
		footerCode: footerCode,
		lease:      lease,
		recorder:   recorder,
	}
}

func (l *Live) submit(ctx context.Context, kind model.TemplateKind, args map[string]string) (int, error) {
	body, err := l.templates.Render(kind, args)
	if err != nil {
		return 0, fmt.Errorf("submitter: rendering %s: %w", kind, err)
	}
	code := l.headerCode + body + l.footerCode

	var mem int
	err = retry.Do(ctx, MaxSubmissionAttempts, func(ctx context.Context, attempt int) error {
		_, client, err := l.lease.Next(ctx)
		if err != nil {
			return fmt.Errorf("submitter: acquiring account: %w", err)
		}
		m, err := client.SubmitAndAwaitMemory(ctx, code, l.language, l.problem.SubmitID)
		if err != nil {
			metrics.ProbesTotal.WithLabelValues(string(kind), "error").Inc()
			return err
		}
		mem = m
		return nil
	})
	if err != nil {
		metrics.ProbesTotal.WithLabelValues(string(kind), "exhausted").Inc()
		return 0, fmt.Errorf("submitter: submitting %s: %w", kind, err)
	}
	metrics.ProbesTotal.WithLabelValues(string(kind), "ok").Inc()
	return mem, nil
}

// GetNumber renders the calibration template for n and returns the raw
// judged memory footprint, uninterpreted — the caller (calibration
// routine) is the one fitting the regression Model from these samples.
func (l *Live) GetNumber(ctx context.Context, n int) (int, error) {
	return l.submit(ctx, model.TemplateCalibration, map[string]string{
		"number": strconv.Itoa(n),
	})
}

// GetNextChar returns the raw judged memory reading for the rendered
// get_next_char template; the Crawler Core decodes it.
func (l *Live) GetNextChar(ctx context.Context, prefix string, limit int) (int, error) {
	return l.submit(ctx, model.TemplateGetNextChar, map[string]string{
		"prefix": prefix,
		"limit":  strconv.Itoa(limit),
	})
}

// GetPrefixLengthLength returns the raw judged memory reading for the
// rendered get_prefix_length_length template; the Crawler Core decodes
// it.
func (l *Live) GetPrefixLengthLength(ctx context.Context, prefix string) (int, error) {
	return l.submit(ctx, model.TemplateGetPrefixLengthLength, map[string]string{
		"prefix": prefix,
	})
}

// GetPrefixLength returns the raw judged memory reading for the rendered
// get_prefix_length template; the Crawler Core decodes it.
func (l *Live) GetPrefixLength(ctx context.Context, prefix string, partial int, position int) (int, error) {
	return l.submit(ctx, model.TemplateGetPrefixLength, map[string]string{
		"prefix":        prefix,
		"length_prefix": strconv.Itoa(partial),
		"position":      strconv.Itoa(position),
	})
}

func (l *Live) FoundTestcase(ctx context.Context, testcase string) error {
	return l.recorder.FoundTestcase(ctx, l.problem.ID, testcase)
}
