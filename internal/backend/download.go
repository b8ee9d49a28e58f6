package backend

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strconv"
)

// Download paths for opaque binary payloads.
const (
	pathReceiptPDF     = "receipts/%d/pdf/"
	pathCertificatePDF = "certificates/%d/pdf/"
	pathMaterialFile   = "materials/%d/download/"
	pathExport         = "export/"
)

// Download describes a streamed file.
type Download struct {
	ContentType string
	Filename    string
	Size        int64
}

// Preparer is implemented by writers that need the metadata before the first
// byte is written, such as an http.ResponseWriter wrapper setting headers.
type Preparer interface {
	Prepare(Download)
}

// ReceiptPDF, CertificatePDF, MaterialFile and Export return the relative
// paths the portal streams from.
func ReceiptPDF(id int64) string     { return fmt.Sprintf(pathReceiptPDF, id) }
func CertificatePDF(id int64) string { return fmt.Sprintf(pathCertificatePDF, id) }
func MaterialFile(id int64) string   { return fmt.Sprintf(pathMaterialFile, id) }
func Export() string                 { return pathExport }

// Download streams the body at rel into w without interpreting it. The
// metadata is returned before any error from the copy so callers that have
// already set headers can still log what was attempted.
func (c *Client) Download(ctx context.Context, rel string, w io.Writer) (Download, error) {
	req, err := c.newRequest(ctx, http.MethodGet, rel, nil, nil)
	if err != nil {
		return Download{}, err
	}
	req.Header.Set("Accept", "*/*")
	resp, err := c.send(req)
	if err != nil {
		return Download{}, err
	}
	defer resp.Body.Close()

	meta := Download{
		ContentType: resp.Header.Get("Content-Type"),
		Filename:    filename(resp.Header.Get("Content-Disposition"), rel),
	}
	if meta.ContentType == "" {
		meta.ContentType = "application/octet-stream"
	}
	if n, err := strconv.ParseInt(resp.Header.Get("Content-Length"), 10, 64); err == nil {
		meta.Size = n
	}
	if hw, ok := w.(Preparer); ok {
		hw.Prepare(meta)
	}
	written, err := io.Copy(w, resp.Body)
	if meta.Size == 0 {
		meta.Size = written
	}
	if err != nil {
		return meta, fmt.Errorf("%w: copy %s: %v", ErrTransport, rel, err)
	}
	return meta, nil
}

func filename(disposition, rel string) string {
	if disposition != "" {
		if _, params, err := mime.ParseMediaType(disposition); err == nil && params["filename"] != "" {
			return path.Base(params["filename"])
		}
	}
	base := path.Base(path.Clean("/" + rel))
	if base == "/" || base == "." || base == "download" || base == "pdf" {
		return "download"
	}
	return base
}
