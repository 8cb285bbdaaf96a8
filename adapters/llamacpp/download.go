// Model download path for LlamaCpp backends (spec.md §4.1/§9): on first
// use, if AutoDownloadModel is set and the local file at ModelPath is
// absent, download from ModelUrl into a temporary file in the same
// directory, logging progress at >=5s intervals, then rename to the final
// path on success and remove the temp file on failure. Downloads are
// serialized per ModelPath — at most one in flight for any given path,
// process-wide.
package llamacpp

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// downloadLocks is the process-wide per-path mutex registry (spec.md §5:
// "a per-path mutex to enforce at-most-one download per ModelPath").
var (
	downloadLocksMu sync.Mutex
	downloadLocks   = make(map[string]*sync.Mutex)
)

func lockFor(path string) *sync.Mutex {
	downloadLocksMu.Lock()
	defer downloadLocksMu.Unlock()
	if l, ok := downloadLocks[path]; ok {
		return l
	}
	l := &sync.Mutex{}
	downloadLocks[path] = l
	return l
}

// EnsureModel guarantees modelPath exists, downloading from modelURL if
// autoDownload is set and the file is currently absent.
func EnsureModel(ctx context.Context, modelPath, modelURL string, autoDownload bool, logger *zap.Logger) error {
	if modelPath == "" {
		return nil
	}
	if _, err := os.Stat(modelPath); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}
	if !autoDownload {
		return fmt.Errorf("llamacpp: model file %q not found and AutoDownloadModel is false", modelPath)
	}
	if modelURL == "" {
		return fmt.Errorf("llamacpp: model file %q not found and no ModelUrl configured", modelPath)
	}

	mu := lockFor(modelPath)
	mu.Lock()
	defer mu.Unlock()

	// Re-check after acquiring the lock: another goroutine may have
	// finished the download while we were waiting.
	if _, err := os.Stat(modelPath); err == nil {
		return nil
	}

	if logger == nil {
		logger = zap.NewNop()
	}
	return downloadModel(ctx, modelPath, modelURL, logger)
}

func downloadModel(ctx context.Context, modelPath, modelURL string, logger *zap.Logger) error {
	partialPath := modelPath + ".partial"
	dir := filepath.Dir(modelPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("llamacpp: creating model directory: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, modelURL, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("llamacpp: downloading model: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("llamacpp: model download returned HTTP %d", resp.StatusCode)
	}

	out, err := os.Create(partialPath)
	if err != nil {
		return fmt.Errorf("llamacpp: creating partial file: %w", err)
	}

	logger.Info("llamacpp: downloading model", zap.String("path", modelPath), zap.String("url", modelURL))

	if err := copyWithProgress(ctx, out, resp.Body, resp.ContentLength, modelPath, logger); err != nil {
		out.Close()
		os.Remove(partialPath)
		return err
	}

	if err := out.Sync(); err != nil {
		out.Close()
		os.Remove(partialPath)
		return fmt.Errorf("llamacpp: fsync partial file: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(partialPath)
		return fmt.Errorf("llamacpp: closing partial file: %w", err)
	}

	if err := os.Rename(partialPath, modelPath); err != nil {
		os.Remove(partialPath)
		return fmt.Errorf("llamacpp: renaming partial file: %w", err)
	}

	logger.Info("llamacpp: model download complete", zap.String("path", modelPath))
	return nil
}

const progressLogInterval = 5 * time.Second

func copyWithProgress(ctx context.Context, dst io.Writer, src io.Reader, total int64, modelPath string, logger *zap.Logger) error {
	buf := make([]byte, 256*1024)
	var written int64
	lastLog := time.Now()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, readErr := src.Read(buf)
		if n > 0 {
			if _, err := dst.Write(buf[:n]); err != nil {
				return err
			}
			written += int64(n)
			if time.Since(lastLog) >= progressLogInterval {
				if total > 0 {
					logger.Info("llamacpp: download progress",
						zap.String("path", modelPath),
						zap.Int64("written_bytes", written),
						zap.Int64("total_bytes", total),
						zap.Float64("percent", 100*float64(written)/float64(total)))
				} else {
					logger.Info("llamacpp: download progress", zap.String("path", modelPath), zap.Int64("written_bytes", written))
				}
				lastLog = time.Now()
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return readErr
		}
	}
}
