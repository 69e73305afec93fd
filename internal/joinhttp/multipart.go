package joinhttp

import (
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"

	"github.com/geoserve/joins/internal/csvingest"
)

// readJoinUpload walks the multipart/form-data body the way
// gcsemu.readMultipartInsert walks a multipart/related body: one
// NextPart() call per field, buffering each part fully before moving
// on. Scalar fields populate form; the part named "joinFile" becomes
// the UploadedFile ProcessCSV needs.
func readJoinUpload(r *http.Request) (map[string]string, csvingest.UploadedFile, error) {
	form := map[string]string{}
	var file csvingest.UploadedFile

	v := r.Header.Get("Content-Type")
	d, params, err := mime.ParseMediaType(v)
	if err != nil || d != "multipart/form-data" {
		return nil, file, fmt.Errorf("expected multipart/form-data, got %q", v)
	}
	boundary, ok := params["boundary"]
	if !ok {
		return nil, file, fmt.Errorf("multipart/form-data missing boundary")
	}

	reader := multipart.NewReader(r.Body, boundary)
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, file, fmt.Errorf("failed to read multipart body: %w", err)
		}

		name := part.FormName()
		if name == "joinFile" {
			buf, err := io.ReadAll(part)
			if err != nil {
				return nil, file, fmt.Errorf("failed to read joinFile: %w", err)
			}
			file = csvingest.UploadedFile{
				Name:        part.FileName(),
				ContentType: part.Header.Get("Content-Type"),
				Buffer:      buf,
			}
			continue
		}

		buf, err := io.ReadAll(part)
		if err != nil {
			return nil, file, fmt.Errorf("failed to read field %s: %w", name, err)
		}
		form[name] = string(buf)
	}

	return form, file, nil
}
