package transport

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
)

// MultipartBoundary is the boundary marker the content service expects.
const MultipartBoundary = "__END_OF_PART__"

// Request describes one logical HTTP call. The body builder runs once per
// attempt.
type Request struct {
	Method string
	URL    string
	Header http.Header
	// Upload marks bodies that are subject to the upload rate limit.
	Upload bool

	body func() (io.ReadCloser, string, error)
}

// NewGet builds a GET request.
func NewGet(url string) *Request {
	return &Request{Method: http.MethodGet, URL: url, Header: http.Header{}}
}

// NewJSON builds a POST request carrying payload encoded as JSON. The payload
// is encoded once so every attempt sends the same bytes.
func NewJSON(url string, payload any) (*Request, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode json body: %w", err)
	}
	return NewRawJSON(url, encoded), nil
}

// NewRawJSON builds a POST request from an already encoded JSON body.
func NewRawJSON(url string, body []byte) *Request {
	return &Request{
		Method: http.MethodPost,
		URL:    url,
		Header: http.Header{},
		body: func() (io.ReadCloser, string, error) {
			return io.NopCloser(bytes.NewReader(body)), "application/json", nil
		},
	}
}

// NewMultipart builds a multipart POST request from form.
func NewMultipart(url string, form *Form) *Request {
	return &Request{
		Method: http.MethodPost,
		URL:    url,
		Header: http.Header{},
		Upload: true,
		body:   form.open,
	}
}

// Form is an ordered multipart form: fields first, then files.
type Form struct {
	fields []formField
	files  []formFile
}

type formField struct {
	name  string
	value string
}

type formFile struct {
	name        string
	path        string
	filename    string
	contentType string
}

// NewForm returns an empty form.
func NewForm() *Form {
	return &Form{}
}

// AddField appends a plain form field.
func (f *Form) AddField(name, value string) *Form {
	f.fields = append(f.fields, formField{name: name, value: value})
	return f
}

// AddFile appends a file part read from path. An empty filename uses the
// base name of path.
func (f *Form) AddFile(name, path, filename, contentType string) *Form {
	if strings.TrimSpace(filename) == "" {
		filename = filepath.Base(path)
	}
	f.files = append(f.files, formFile{name: name, path: path, filename: filename, contentType: contentType})
	return f
}

// open streams the encoded form through a pipe so large images are not
// buffered in memory.
func (f *Form) open() (io.ReadCloser, string, error) {
	for _, file := range f.files {
		if _, err := os.Stat(file.path); err != nil {
			return nil, "", fmt.Errorf("multipart file %q: %w", file.name, err)
		}
	}

	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)
	if err := writer.SetBoundary(MultipartBoundary); err != nil {
		return nil, "", fmt.Errorf("set multipart boundary: %w", err)
	}
	contentType := writer.FormDataContentType()

	go func() {
		pw.CloseWithError(f.write(writer))
	}()
	return pr, contentType, nil
}

func (f *Form) write(writer *multipart.Writer) error {
	for _, field := range f.fields {
		if err := writer.WriteField(field.name, field.value); err != nil {
			return fmt.Errorf("write field %s: %w", field.name, err)
		}
	}
	for _, file := range f.files {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
			escapeQuotes(file.name), escapeQuotes(file.filename)))
		if file.contentType != "" {
			header.Set("Content-Type", file.contentType)
		}
		part, err := writer.CreatePart(header)
		if err != nil {
			return fmt.Errorf("create part %s: %w", file.name, err)
		}
		src, err := os.Open(file.path)
		if err != nil {
			return fmt.Errorf("open %s: %w", file.path, err)
		}
		_, copyErr := io.Copy(part, src)
		closeErr := src.Close()
		if copyErr != nil {
			return fmt.Errorf("copy %s: %w", file.path, copyErr)
		}
		if closeErr != nil {
			return closeErr
		}
	}
	return writer.Close()
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
