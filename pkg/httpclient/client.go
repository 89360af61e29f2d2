// Copyright (C) 2022-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package httpclient

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/schollz/progressbar/v3"

	"github.com/luxfi/dbsync/pkg/constants"
)

const userAgent = "dbsync/1.0"

// Client fetches remote documents and artifacts. Both methods fail on any
// non-2xx response.
type Client interface {
	FetchText(url string) (string, error)
	FetchBinary(url string) ([]byte, error)
}

type client struct {
	inner       *http.Client
	progressOut io.Writer
}

// New returns the production client. Binary downloads render a progress bar
// to stderr when the response advertises its length.
func New() Client {
	return &client{
		inner:       &http.Client{Timeout: constants.RequestTimeout},
		progressOut: os.Stderr,
	}
}

func (c *client) get(url string) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", url, err)
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := c.inner.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", url, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("request to %s failed with status %s", url, resp.Status)
	}
	return resp, nil
}

func (c *client) FetchText(url string) (string, error) {
	resp, err := c.get(url)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read body from %s: %w", url, err)
	}
	return string(body), nil
}

func (c *client) FetchBinary(url string) ([]byte, error) {
	resp, err := c.get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	reader := io.Reader(resp.Body)
	if resp.ContentLength > 0 {
		bar := progressbar.NewOptions64(
			resp.ContentLength,
			progressbar.OptionSetWriter(c.progressOut),
			progressbar.OptionShowBytes(true),
			progressbar.OptionSetWidth(15),
			progressbar.OptionSetDescription("downloading"),
			progressbar.OptionClearOnFinish(),
		)
		reader = io.TeeReader(reader, bar)
	}
	if _, err := io.Copy(&buf, reader); err != nil {
		return nil, fmt.Errorf("failed to read body from %s: %w", url, err)
	}
	return buf.Bytes(), nil
}
