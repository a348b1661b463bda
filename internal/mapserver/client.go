package mapserver

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// UploadError is a non-200 answer from the hosting or archive endpoint;
// status and body go to the logs verbatim.
type UploadError struct {
	Status int
	Body   string
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload endpoint returned %d: %s", e.Status, e.Body)
}

// Client talks to one upload/delete HTTP endpoint authenticated by a
// static token header. The map-hosting server and the archive server share
// the contract, so both are instances of this client.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Upload posts one asset. nameField is the type-specific name field the
// endpoint expects ("map_name" for maps, "filename" for archive assets).
func (c *Client) Upload(assetType, nameField, name, filename string, data []byte) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := w.WriteField("asset_type", assetType); err != nil {
		return fmt.Errorf("write field: %w", err)
	}
	if err := w.WriteField(nameField, name); err != nil {
		return fmt.Errorf("write field: %w", err)
	}
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close multipart: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/upload", &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("X-Token", c.token)

	return c.do(req)
}

func (c *Client) UploadMap(name string, data []byte) error {
	return c.Upload("map", "map_name", name, name+".map", data)
}

func (c *Client) UploadThumbnail(name string, data []byte) error {
	return c.Upload("thumbnail", "map_name", name, name+".png", data)
}

// Delete removes a hosted map. Used when a testing channel goes away.
func (c *Client) Delete(mapName string) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("map_name", mapName); err != nil {
		return fmt.Errorf("write field: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close multipart: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/delete", &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("X-Token", c.token)

	return c.do(req)
}

func (c *Client) do(req *http.Request) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return &UploadError{Status: resp.StatusCode, Body: string(body)}
	}
	return nil
}
