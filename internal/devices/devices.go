// Package devices is the HTTP client of the relay's device and transfer endpoints.
package devices

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/relaydrop/relaydrop/internal/progress"
	"github.com/relaydrop/relaydrop/protocol/api"
)

// StatusError is returned when the relay answers with a non 200 status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("relay responded %d %s: %s", e.Code, http.StatusText(e.Code), e.Body)
}

type Client struct {
	base string
	http *http.Client
}

// New returns a client of the relay at addr (host:port).
func New(addr string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{base: "http://" + addr, http: httpClient}
}

// DetectIP returns the address the relay sees this host connecting from.
func (c *Client) DetectIP(ctx context.Context) (string, error) {
	var res api.DetectIPResponse
	if err := c.get(ctx, "/detect_ip", nil, &res); err != nil {
		return "", err
	}
	return res.IP, nil
}

// RecordIP registers this host with the relay and returns the recorded address.
func (c *Client) RecordIP(ctx context.Context) (string, error) {
	var res api.StatusResponse
	if err := c.get(ctx, "/record_ip", nil, &res); err != nil {
		return "", err
	}
	if res.IP == nil {
		return "", fmt.Errorf("relay did not report the recorded address")
	}
	return *res.IP, nil
}

func (c *Client) RemoveIP(ctx context.Context) error {
	var res api.StatusResponse
	return c.get(ctx, "/remove_ip", nil, &res)
}

// GetIPs lists the registered devices.
func (c *Client) GetIPs(ctx context.Context) ([]string, error) {
	var res api.DevicesResponse
	if err := c.get(ctx, "/get_ips", nil, &res); err != nil {
		return nil, err
	}
	return res.Devices, nil
}

// SendFile asks the relay to offer the file at path, resolved on the relay
// host, to the device at clientIP. It returns the relay status.
func (c *Client) SendFile(ctx context.Context, clientIP, path string) (string, error) {
	var res api.StatusResponse
	req := api.SendFileRequest{ClientIP: clientIP, Filename: filepath.Base(path), Filepath: path}
	if err := c.post(ctx, "/send_file", req, &res); err != nil {
		return "", err
	}
	return res.Status, nil
}

// PushClipboard sends text to the device at clientIP. An empty text sends the
// clipboard of the relay host.
func (c *Client) PushClipboard(ctx context.Context, clientIP, text string) (string, error) {
	var res api.StatusResponse
	if err := c.post(ctx, "/clipboard", api.ClipboardRequest{ClientIP: clientIP, Text: text}, &res); err != nil {
		return "", err
	}
	return res.Status, nil
}

// Upload stores the local file at path on the relay. Progress is reported to
// estimator, which may be nil.
func (c *Client) Upload(ctx context.Context, path string, estimator *progress.Estimator) (api.UploadResponse, error) {
	f, err := os.Open(path)
	if err != nil {
		return api.UploadResponse{}, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return api.UploadResponse{}, err
	}
	if estimator == nil {
		estimator = progress.New(nil)
	}
	estimator.SetTotal(info.Size())
	estimator.SetTitle(info.Name())

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	done := make(chan struct{})
	go func() {
		defer close(done)
		fw, err := mw.CreateFormFile(api.UploadField, info.Name())
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(fw, &countingReader{r: f, report: func(n int64) { estimator.Update(n) }}); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(mw.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/upload", pr)
	if err != nil {
		pr.Close()
		<-done
		return api.UploadResponse{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var res api.UploadResponse
	err = c.do(req, &res)
	// unblocks the writer when the relay answered before consuming the body
	pr.Close()
	<-done
	if err != nil {
		estimator.Fail(err)
		return api.UploadResponse{}, err
	}
	estimator.Complete()
	return res, nil
}

// ------------------------------------------------------ Helpers ------------------------------------------------------

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("requesting %s: %w", req.URL.Path, err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return &StatusError{Code: res.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", req.URL.Path, err)
	}
	return nil
}

// countingReader reports the running total of bytes read.
type countingReader struct {
	r      io.Reader
	n      int64
	report func(int64)
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.n += int64(n)
		c.report(c.n)
	}
	return n, err
}
