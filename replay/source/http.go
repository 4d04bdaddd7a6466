// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package source

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/pkg/errors"
)

// HTTPOpener opens "http:" and "https:" URLs, reading them with range
// requests. The server must support HEAD and Range.
type HTTPOpener struct {
	// Client is the HTTP client to use. If nil, http.DefaultClient is used.
	Client *http.Client

	// ReadAhead is the number of bytes to fetch per request. If <= 0,
	// DefaultReadAhead is used.
	ReadAhead int64
}

var _ Opener = (*HTTPOpener)(nil)

func (o *HTTPOpener) client() *http.Client {
	if o.Client != nil {
		return o.Client
	}
	return http.DefaultClient
}

func (o *HTTPOpener) head(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "building HEAD request for %q", url)
	}
	resp, err := o.client().Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "HEAD %q", url)
	}
	_ = resp.Body.Close()
	return resp, nil
}

// Open implements Opener.
func (o *HTTPOpener) Open(ctx context.Context, name string) (Source, error) {
	resp, err := o.head(ctx, name)
	if err != nil {
		return nil, err
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, errors.Wrapf(ErrNotFound, "%q", name)
	case resp.StatusCode != http.StatusOK:
		return nil, errors.Errorf("HEAD %q: %s", name, resp.Status)
	case resp.ContentLength < 0:
		return nil, errors.Errorf("HEAD %q: unknown content length", name)
	}

	fetch := func(ctx context.Context, off, n int64) (io.ReadCloser, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, name, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", off, off+n-1))

		resp, err := o.client().Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusPartialContent {
			_ = resp.Body.Close()
			return nil, errors.Errorf("GET %q range %d+%d: %s", name, off, n, resp.Status)
		}
		return resp.Body, nil
	}
	return newRangedSource(ctx, name, resp.ContentLength, o.ReadAhead, fetch), nil
}

// Exists implements Opener.
func (o *HTTPOpener) Exists(ctx context.Context, name string) (bool, error) {
	resp, err := o.head(ctx, name)
	if err != nil {
		return false, err
	}
	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, errors.Errorf("HEAD %q: %s", name, resp.Status)
	}
}
