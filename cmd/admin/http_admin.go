package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// stateCmd prints the live session view of a running server.
func stateCmd(args []string) {
	serverCall("state", http.MethodGet, "/admin/v1/state", args)
}

// newRunCmd asks a running server to abandon its run and start a new one.
func newRunCmd(args []string) {
	serverCall("new-run", http.MethodPost, "/admin/v1/new_run", args)
}

// serverCall hits one loopback admin endpoint and echoes the JSON body. A
// non-2xx status exits 1.
func serverCall(name, method, path string, args []string) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	timeout := fs.Duration("timeout", 10*time.Second, "request timeout")
	_ = fs.Parse(args)

	body, err := adminRequest(*baseURL, method, path, *timeout)
	if body != nil {
		fmt.Println(strings.TrimSpace(string(body)))
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// adminRequest returns the response body; a non-2xx status is an error
// carrying the body too.
func adminRequest(baseURL, method, path string, timeout time.Duration) ([]byte, error) {
	req, err := http.NewRequest(method, strings.TrimRight(strings.TrimSpace(baseURL), "/")+path, nil)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	resp, err := (&http.Client{Timeout: timeout}).Do(req)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return b, fmt.Errorf("%s %s: %s", method, path, resp.Status)
	}
	return b, nil
}
