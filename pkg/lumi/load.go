package lumi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

// IsURL tells whether source should be fetched over HTTP(S) rather than
// read from disk.
func IsURL(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}

// Load reads a lumi mask from a local file or an HTTP(S) URL.
//
// When client is nil, http.DefaultClient is used.
//
// A missing local file is reported as an error wrapping os.ErrNotExist.
func Load(ctx context.Context, client *http.Client, source string) (Mask, error) {
	var body []byte
	if IsURL(source) {
		b, err := fetch(ctx, client, source)
		if err != nil {
			return nil, err
		}
		body = b
	} else {
		b, err := os.ReadFile(source)
		if err != nil {
			return nil, err
		}
		body = b
	}

	mask := Mask{}
	if err := json.Unmarshal(body, &mask); err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}
	return mask.Compact(), nil
}

func fetch(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: unexpected status %s", url, resp.Status)
	}
	return io.ReadAll(resp.Body)
}
