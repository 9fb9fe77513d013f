package sky

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
)

// ErrNoSignedURL is returned when an artifact fetch is attempted without a
// signed retrieval URL.
var ErrNoSignedURL = errors.New("sky: job response carries no signed result URL")

// artifactExtensions are the result file extensions passed through as-is.
// Anything else defaults to .csv, the format the query service emits.
var artifactExtensions = []string{".csv", ".json", ".txt"}

// Download streams a signed result URL to destPath, returning the final
// path (destPath plus an inferred .csv extension when the name carries no
// recognized one). The URL embeds its own authorization, so no headers are
// attached — and the URL itself is never logged.
//
// A failed copy leaves the partial file in place; the caller decides where
// it goes.
func (c *Client) Download(ctx context.Context, signedURL, destPath string) (string, error) {
	if signedURL == "" {
		return "", ErrNoSignedURL
	}

	destPath = inferExtension(destPath)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, signedURL, http.NoBody)
	if err != nil {
		return "", fmt.Errorf("sky: creating download request: %w", err)
	}

	req.Header.Set("User-Agent", userAgent)

	resp, err := c.downloader.Do(req)
	if err != nil {
		return "", &RequestError{
			StatusCode: TransportStatus,
			Body:       err.Error(),
			Err:        ErrTransport,
		}
	}

	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			body = []byte("(failed to read response body)")
		}

		return "", &RequestError{
			StatusCode: resp.StatusCode,
			Body:       errorText(body),
			Err:        classifyStatus(resp.StatusCode),
		}
	}

	out, err := os.Create(destPath)
	if err != nil {
		return "", fmt.Errorf("sky: creating artifact file: %w", err)
	}

	n, copyErr := io.Copy(out, resp.Body)

	if closeErr := out.Close(); copyErr == nil {
		copyErr = closeErr
	}

	if copyErr != nil {
		c.logger.Error("streaming artifact failed",
			slog.String("path", destPath),
			slog.Int64("bytes_before_error", n),
			slog.String("error", copyErr.Error()),
		)

		return destPath, fmt.Errorf("sky: streaming artifact to %s: %w", destPath, copyErr)
	}

	c.logger.Info("artifact downloaded",
		slog.String("path", destPath),
		slog.Int64("bytes", n),
	)

	return destPath, nil
}

// inferExtension appends .csv when the name has no recognized extension.
func inferExtension(name string) string {
	lower := strings.ToLower(name)
	for _, ext := range artifactExtensions {
		if strings.HasSuffix(lower, ext) {
			return name
		}
	}

	return name + ".csv"
}
