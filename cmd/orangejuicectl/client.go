package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// apiCall issues method to serverURL+path with body marshaled as JSON
// (nil for no body), decoding a successful response's JSON body into out
// (nil to discard it). A non-2xx response is surfaced as an error
// carrying the response body verbatim.
func apiCall(method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(b)
		if verbose {
			fmt.Printf("--> %s %s %s\n", method, path, b)
		}
	}

	req, err := http.NewRequest(method, serverURL+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := newHTTPClient().Do(req)
	if err != nil {
		return fmt.Errorf("calling %s: %w", serverURL+path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if verbose {
		fmt.Printf("<-- %d %s\n", resp.StatusCode, respBody)
	}

	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, bytes.TrimSpace(respBody))
	}
	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}
