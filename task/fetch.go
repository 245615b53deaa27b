package task

import (
	"fmt"
	"go.uber.org/zap"
	"golang.org/x/net/context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const (
	// DefaultMaxRetries bounds how many times a rate-limited fetch is
	// attempted before the image tag is abandoned.
	DefaultMaxRetries = 5

	// DefaultRetryDelay is the constant pause between rate-limited attempts.
	DefaultRetryDelay = 60 * time.Second

	rateLimitPhrase = "You are being rate limited"
)

// invokeFunc runs the metadata tool for one image tag and returns its
// combined stdout/stderr along with the invocation error, if any.
type invokeFunc func(ctx context.Context, tool, imageTag string) ([]byte, error)

func cliInvoke(ctx context.Context, tool, imageTag string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, tool, "show", "--image-tag", imageTag)
	return cmd.CombinedOutput()
}

// FetchConfig carries the invocation target and retry policy. Zero retry
// values fall back to the defaults above.
type FetchConfig struct {
	Tool       string
	OutputDir  string
	MaxRetries int
	RetryDelay time.Duration
}

type Fetcher struct {
	logger *zap.Logger
	cfg    FetchConfig
	invoke invokeFunc
}

func NewFetcher(logger *zap.Logger, cfg FetchConfig) *Fetcher {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	return &Fetcher{logger: logger, cfg: cfg, invoke: cliInvoke}
}

// Run fetches metadata for every image tag in order. One tag is processed to
// completion, retries included, before the next begins. The returned error is
// non-nil only when ctx is cancelled; per-tag failures are recorded in the
// RunResult and never stop the run.
func (f *Fetcher) Run(ctx context.Context, imageTags []string) (*RunResult, error) {
	f.logger.Info("running fetch on artifacts", zap.Int("count", len(imageTags)))

	result := &RunResult{}
	for _, tag := range imageTags {
		if tag == "" {
			f.logger.Warn("skipping export record without an image tag")
			continue
		}
		outcome, err := f.fetchOne(ctx, tag)
		if err != nil {
			return result, err
		}
		result.add(outcome)
	}

	f.logger.Info("fetch run finished",
		zap.Int64("artifacts_done_number", result.DoneNumber),
		zap.Int64("artifacts_succeeded_number", result.SucceededNumber),
		zap.Int64("artifacts_failed_number", result.FailedNumber),
		zap.Int64("artifacts_abandoned_number", result.AbandonedNumber))
	return result, nil
}

func (f *Fetcher) fetchOne(ctx context.Context, imageTag string) (ArtifactOutcome, error) {
	outPath := f.metadataPath(imageTag)
	outcome := ArtifactOutcome{ImageTag: imageTag, OutputFile: outPath}

	for attempt := 1; ; attempt++ {
		outcome.Attempts = attempt
		f.logger.Info("fetching metadata",
			zap.String("image_tag", imageTag),
			zap.Int("attempt", attempt))

		output, invokeErr := f.invoke(ctx, f.cfg.Tool, imageTag)
		if ctx.Err() != nil {
			return outcome, ctx.Err()
		}

		// Every attempt overwrites the tag's file, success or not; the file
		// always holds the most recent attempt's output.
		if err := writeMetadata(outPath, output); err != nil {
			f.logger.Error("failed writing metadata file",
				zap.String("image_tag", imageTag), zap.Error(err))
			outcome.Status = StatusFailed
			outcome.FailureReason = err.Error()
			return outcome, nil
		}

		// Retry is decided by output text alone; the exit code does not
		// participate.
		if isRateLimited(string(output)) {
			if attempt >= f.cfg.MaxRetries {
				f.logger.Warn("still rate limited after maximum retries, abandoning image tag",
					zap.String("image_tag", imageTag),
					zap.Int("attempts", attempt))
				outcome.Status = StatusAbandoned
				outcome.FailureReason = "rate limited after maximum retries"
				return outcome, nil
			}
			f.logger.Warn("rate limited, retrying",
				zap.String("image_tag", imageTag),
				zap.Int("attempt", attempt),
				zap.Duration("delay", f.cfg.RetryDelay))
			if err := wait(ctx, f.cfg.RetryDelay); err != nil {
				return outcome, err
			}
			continue
		}

		if invokeErr != nil {
			f.logger.Error("failed fetching metadata",
				zap.String("image_tag", imageTag), zap.Error(invokeErr))
			outcome.Status = StatusFailed
			outcome.FailureReason = invokeErr.Error()
			return outcome, nil
		}

		f.logger.Info("fetched metadata",
			zap.String("image_tag", imageTag),
			zap.String("file", outPath))
		outcome.Status = StatusSucceeded
		return outcome, nil
	}
}

func (f *Fetcher) metadataPath(imageTag string) string {
	return filepath.Join(f.cfg.OutputDir, imageTag+"_metadata.json")
}

// isRateLimited reports whether the tool output carries the dataset
// service's throttling message. The match is a case-sensitive substring
// check; swap the strategy here if the service ever grows a structured
// error channel.
func isRateLimited(output string) bool {
	return strings.Contains(output, rateLimitPhrase)
}

// writeMetadata persists the captured output verbatim, creating nested
// directories for tags that contain path separators.
func writeMetadata(path string, output []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed creating metadata directory: %s", err.Error())
	}
	if err := os.WriteFile(path, output, 0644); err != nil {
		return fmt.Errorf("failed writing metadata file: %s", err.Error())
	}
	return nil
}

// wait blocks for the retry delay or until ctx is cancelled.
func wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
