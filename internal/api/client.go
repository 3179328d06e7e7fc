package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/zombor/billed/internal/bill"
)

// StoreError is a failure answered by the bill store
type StoreError struct {
	StatusCode int
	Message    string
}

func (e *StoreError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("Erreur %d", e.StatusCode)
	}
	return fmt.Sprintf("Erreur %d: %s", e.StatusCode, e.Message)
}

// Client talks to the bill store server
type Client struct {
	baseURL string
	auth    bill.BasicAuth
	client  *http.Client
}

// NewClient creates a Client for the store at baseURL
func NewClient(baseURL string, auth bill.BasicAuth) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		auth:    auth,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// List returns the bills of email, or every bill when email is empty
func (c *Client) List(ctx context.Context, email string) ([]*bill.Bill, error) {
	u := c.baseURL + "/api/bills"
	if email != "" {
		u += "?" + url.Values{"email": {email}}.Encode()
	}

	var bills []*bill.Bill
	if err := c.do(ctx, http.MethodGet, u, nil, "", &bills); err != nil {
		return nil, fmt.Errorf("listing bills: %w", err)
	}
	return bills, nil
}

// Create uploads a receipt for email and returns where the store keeps it
func (c *Client) Create(ctx context.Context, file *bill.File, email string) (*bill.Upload, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, file.Name))
	header.Set("Content-Type", file.Type)
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("creating file part: %w", err)
	}
	if _, err := part.Write(file.Data); err != nil {
		return nil, fmt.Errorf("writing file part: %w", err)
	}
	if err := writer.WriteField("email", email); err != nil {
		return nil, fmt.Errorf("writing email field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("closing multipart body: %w", err)
	}

	var upload bill.Upload
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/api/bills", &body, writer.FormDataContentType(), &upload); err != nil {
		return nil, fmt.Errorf("creating bill: %w", err)
	}
	return &upload, nil
}

// Update stores b under id. An empty id asks the store to create a new record.
func (c *Client) Update(ctx context.Context, id string, b *bill.Bill) (*bill.Bill, error) {
	data, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("marshaling bill: %w", err)
	}

	u := c.baseURL + "/api/bills"
	if id != "" {
		u += "/" + url.PathEscape(id)
	}

	var updated bill.Bill
	if err := c.do(ctx, http.MethodPut, u, bytes.NewReader(data), "application/json", &updated); err != nil {
		return nil, fmt.Errorf("updating bill: %w", err)
	}
	return &updated, nil
}

// Download fetches a receipt from its file URL and returns its bytes and content type
func (c *Client) Download(ctx context.Context, fileURL string) ([]byte, string, error) {
	if strings.HasPrefix(fileURL, "/") {
		fileURL = c.baseURL + fileURL
	}

	req, err := c.newRequest(ctx, http.MethodGet, fileURL, nil, "")
	if err != nil {
		return nil, "", err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("downloading receipt: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("downloading receipt: %w", readStoreError(resp))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("reading receipt: %w", err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

func (c *Client) newRequest(ctx context.Context, method, u string, body io.Reader, contentType string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.auth.Username != "" || c.auth.Password != "" {
		req.SetBasicAuth(c.auth.Username, c.auth.Password)
	}
	return req, nil
}

// do sends a request and decodes the JSON answer into out
func (c *Client) do(ctx context.Context, method, u string, body io.Reader, contentType string, out any) error {
	req, err := c.newRequest(ctx, method, u, body, contentType)
	if err != nil {
		return err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("calling bill store: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return readStoreError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// readStoreError turns a failed answer into a StoreError, keeping the store's message when it sent one
func readStoreError(resp *http.Response) *StoreError {
	serr := &StoreError{StatusCode: resp.StatusCode}

	body, _ := io.ReadAll(resp.Body)
	var answer struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &answer) == nil {
		serr.Message = answer.Error
	}
	return serr
}
