// Package file fetches upstream source archives over HTTP(S) onto the local
// filesystem, where the rest of the engine takes over.
package file

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// DownloadResult describes a completed download.
type DownloadResult struct {
	FilePath    string
	Size        int64
	ContentType string
	StatusCode  int
}

// DownloadOptions configures a download.
type DownloadOptions struct {
	// OutputPath is where the file is written. Required.
	OutputPath string
	// CreateDirs creates missing parent directories.
	CreateDirs bool
	// OverwriteExist allows replacing an existing file.
	OverwriteExist bool
	// MaxFileSize limits the downloaded size in bytes; 0 means no limit.
	MaxFileSize int64
	// Timeout bounds the whole request; 0 means the 30s default.
	Timeout time.Duration
	// Username and Password enable basic auth when both are set.
	Username string
	Password string
}

// Download fetches url into options.OutputPath.
func Download(ctx context.Context, url string, options *DownloadOptions) (*DownloadResult, error) {
	if options == nil || options.OutputPath == "" {
		return nil, fmt.Errorf("download of %s needs an output path", url)
	}
	timeout := options.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	client := &http.Client{Timeout: timeout}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	if options.Username != "" && options.Password != "" {
		req.SetBasicAuth(options.Username, options.Password)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download of %s failed: HTTP %d", url, resp.StatusCode)
	}
	if options.MaxFileSize > 0 && resp.ContentLength > options.MaxFileSize {
		return nil, fmt.Errorf("download of %s too large: %d bytes", url, resp.ContentLength)
	}

	if options.CreateDirs {
		if err := os.MkdirAll(filepath.Dir(options.OutputPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	if !options.OverwriteExist {
		if _, err := os.Stat(options.OutputPath); err == nil {
			return nil, fmt.Errorf("output file %s already exists", options.OutputPath)
		}
	}

	out, err := os.Create(options.OutputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	defer out.Close()

	var src io.Reader = resp.Body
	if options.MaxFileSize > 0 {
		src = io.LimitReader(resp.Body, options.MaxFileSize+1)
	}
	written, err := io.Copy(out, src)
	if err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", options.OutputPath, err)
	}
	if options.MaxFileSize > 0 && written > options.MaxFileSize {
		return nil, fmt.Errorf("download of %s too large: exceeded %d bytes", url, options.MaxFileSize)
	}

	return &DownloadResult{
		FilePath:    options.OutputPath,
		Size:        written,
		ContentType: resp.Header.Get("Content-Type"),
		StatusCode:  resp.StatusCode,
	}, nil
}
