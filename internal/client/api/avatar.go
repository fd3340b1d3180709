package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/cloudzz-dev/cldzchat/internal/models"
)

// UploadAvatar sends the image as the multipart field "file". Oversized or
// non-image content is rejected before any request.
func (c *Client) UploadAvatar(ctx context.Context, userID, filename string, r io.Reader) (*models.User, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxAvatarSize+1))
	if err != nil {
		return nil, err
	}

	var v validator
	contentType := http.DetectContentType(data)
	v.check(len(data) > 0, "file", "File is empty")
	v.check(len(data) <= MaxAvatarSize, "file", "File size must be less than 5MB")
	v.check(len(data) == 0 || strings.HasPrefix(contentType, "image/"), "file", "Only image files are allowed")
	if err := v.err(); err != nil {
		return nil, err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(filepath.Base(filename))))
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(data); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	var user models.User
	err = c.do(ctx, request{
		method:      http.MethodPost,
		path:        "/api/profile/" + url.PathEscape(userID) + "/avatar",
		rawBody:     &body,
		contentType: mw.FormDataContentType(),
	}, &user)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// UploadAvatarFile opens path and uploads it.
func (c *Client) UploadAvatarFile(ctx context.Context, userID, path string) (*models.User, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return c.UploadAvatar(ctx, userID, path, f)
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
