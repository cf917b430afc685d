package contentsource

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"devlens/internal/fileutil"
	"devlens/internal/logging"
	"devlens/internal/services"
)

// Drive downloads recordings through the Drive v3 files API.
type Drive struct {
	BaseURL     string
	AccessToken string

	client *http.Client
	logger *slog.Logger
}

// Name identifies the source.
func (d *Drive) Name() string { return "drive" }

// Fetch resolves the file id from link and streams the media to dest.
func (d *Drive) Fetch(ctx context.Context, link, dest string) (int64, error) {
	const op = "fetch recording"
	fileID, ok := ExtractFileID(link)
	if !ok {
		return 0, services.Wrap(services.ErrValidation, "contentsource", op,
			fmt.Sprintf("no drive file id in %q", link), nil)
	}
	endpoint := fmt.Sprintf("%s/files/%s?alt=media", d.BaseURL, url.PathEscape(fileID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("contentsource: new request: %w", err)
	}
	if token := strings.TrimSpace(d.AccessToken); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, services.Wrap(services.ErrTransient, "contentsource", op, "http request", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return 0, services.Wrap(services.ErrNotFound, "contentsource", op, "drive file "+fileID, nil)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
		return 0, services.Wrap(services.ErrTransient, "contentsource", op, fmt.Sprintf("http %d", resp.StatusCode), nil)
	case resp.StatusCode >= http.StatusMultipleChoices:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, services.Wrap(services.ErrExternalTool, "contentsource", op,
			fmt.Sprintf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))), nil)
	}

	written, err := fileutil.WriteStream(dest, resp.Body)
	if err != nil {
		return 0, services.Wrap(services.ErrTransient, "contentsource", op, "write "+dest, err)
	}
	d.logger.Info("recording downloaded",
		logging.String("file_id", fileID),
		logging.String("dest", dest),
		logging.Int64("bytes", written),
		logging.String(logging.FieldEventType, "recording_downloaded"),
	)
	return written, nil
}
