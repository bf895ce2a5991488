// Package testing holds the fakes and assertions shared by the pipeline's package tests.
//
// Fakes for the stage capabilities (providers, downloader, tagger, clock, saver) live in mocks.go;
// this file covers the plumbing around them: report output, provider HTTP transport and the files
// a stage leaves behind.
package testing

import (
	"errors"
	"net/http"
	"os"
	"testing"
)

// ErrClosedOutput is what [BrokenOutput] and [DroppedBody] fail with.
var ErrClosedOutput = errors.New("stream closed")

// BrokenOutput is a report destination that rejects every write, like a closed pipe on stdout.
type BrokenOutput struct{}

func (BrokenOutput) Write([]byte) (int, error) { return 0, ErrClosedOutput }

// StubTransport answers every provider request with the same response or error.
type StubTransport struct {
	Response *http.Response
	Err      error
	Requests []*http.Request
}

// NewStubTransport returns a transport replying with resp, or failing with err when it is set.
func NewStubTransport(resp *http.Response, err error) *StubTransport {
	return &StubTransport{Response: resp, Err: err}
}

func (s *StubTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	s.Requests = append(s.Requests, req)
	return s.Response, s.Err
}

// DroppedBody is a response body whose connection goes away before the first byte.
type DroppedBody struct{}

func (DroppedBody) Read([]byte) (int, error) { return 0, ErrClosedOutput }
func (DroppedBody) Close() error             { return nil }

// AssertFileExists fails t unless a checkpoint, report or config file was written at path.
func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	switch {
	case err != nil:
		t.Errorf("expected %s to be written: %v", path, err)
	case info.IsDir():
		t.Errorf("expected %s to be a file, found a directory", path)
	}
}

// AssertDirExists fails t unless path is a directory, as created for nested checkpoint paths.
func AssertDirExists(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	switch {
	case err != nil:
		t.Errorf("expected directory %s: %v", path, err)
	case !info.IsDir():
		t.Errorf("expected %s to be a directory", path)
	}
}

// MustReadFile returns the contents of path, stopping the test when it cannot be read.
func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(content)
}
