package connectors

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/Dcup-dev/dcup-ingest/internal/models"
)

const drivePageSize = 50

// GoogleDrive streams files from a user's Drive folder using the
// connection's stored OAuth tokens. An expired access token is refreshed
// exactly once up front; any authorization failure after that is fatal.
type GoogleDrive struct {
	conn      *models.Connection
	payload   models.JobPayload
	oauthCfg  *oauth2.Config
	saveToken TokenSaver
}

var _ Connector = (*GoogleDrive)(nil)

func newGoogleDrive(conn *models.Connection, payload models.JobPayload, clientID, clientSecret string, saveToken TokenSaver) *GoogleDrive {
	return &GoogleDrive{
		conn:    conn,
		payload: payload,
		oauthCfg: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{drive.DriveReadonlyScope},
		},
		saveToken: saveToken,
	}
}

// Documents lists files under the configured folder, page by page, and
// fetches each file's content lazily. Listing honors the page limit; the
// file limit caps yielded documents. A per-file download failure is
// yielded as a failure marker and the stream continues.
func (g *GoogleDrive) Documents(ctx context.Context, fn func(Document) error) error {
	svc, err := g.service(ctx)
	if err != nil {
		return err
	}

	query := "trashed = false"
	if g.conn.FolderName != "" {
		query = fmt.Sprintf("'%s' in parents and trashed = false", g.conn.FolderName)
	}

	pageLimit := limitOrDefault(g.payload.PageLimit, g.conn.PageLimit)
	fileLimit := limitOrDefault(g.payload.FileLimit, g.conn.FileLimit)

	var (
		pageToken string
		pages     int
		yielded   int
	)

	for {
		if pageLimit > 0 && pages >= pageLimit {
			return nil
		}

		call := svc.Files.List().
			Q(query).
			PageSize(drivePageSize).
			Fields("nextPageToken, files(id, name, mimeType)").
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		list, err := call.Do()
		if err != nil {
			return classifyDriveError(err)
		}
		pages++

		for _, f := range list.Files {
			if fileLimit > 0 && yielded >= fileLimit {
				return nil
			}
			doc := g.fetchFile(ctx, svc, f)
			yielded++
			if err := fn(doc); err != nil {
				if err == ErrStopIteration {
					return nil
				}
				return err
			}
		}

		if list.NextPageToken == "" {
			return nil
		}
		pageToken = list.NextPageToken
	}
}

// service builds the Drive client. The stored token is exchanged for a
// fresh one (this is the single refresh attempt); a refreshed token is
// persisted back to the connection.
func (g *GoogleDrive) service(ctx context.Context) (*drive.Service, error) {
	stored := &oauth2.Token{
		AccessToken:  g.conn.AccessToken,
		RefreshToken: g.conn.RefreshToken,
	}
	if g.conn.Expiry != nil {
		stored.Expiry = *g.conn.Expiry
	}

	fresh, err := g.oauthCfg.TokenSource(ctx, stored).Token()
	if err != nil {
		return nil, &models.AuthError{Err: fmt.Errorf("refresh token: %w", err)}
	}

	if fresh.AccessToken != stored.AccessToken && g.saveToken != nil {
		expiry := fresh.Expiry
		if err := g.saveToken(ctx, g.conn.ID, fresh.AccessToken, fresh.RefreshToken, &expiry); err != nil {
			return nil, fmt.Errorf("persist refreshed token: %w", err)
		}
	}

	// Static source: a second expiry surfaces as a fatal auth failure
	// instead of another silent refresh.
	svc, err := drive.NewService(ctx, option.WithTokenSource(oauth2.StaticTokenSource(fresh)))
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}
	return svc, nil
}

func (g *GoogleDrive) fetchFile(ctx context.Context, svc *drive.Service, f *drive.File) Document {
	var (
		body io.ReadCloser
		err  error
	)
	if strings.HasPrefix(f.MimeType, "application/vnd.google-apps") {
		httpResp, exportErr := svc.Files.Export(f.Id, "text/plain").Context(ctx).Download()
		if exportErr != nil {
			return fetchFailure(f.Name, exportErr)
		}
		body = httpResp.Body
	} else {
		httpResp, getErr := svc.Files.Get(f.Id).Context(ctx).Download()
		if getErr != nil {
			return fetchFailure(f.Name, getErr)
		}
		body = httpResp.Body
	}
	defer body.Close()

	data, err := io.ReadAll(io.LimitReader(body, 64<<20))
	if err != nil {
		return fetchFailure(f.Name, err)
	}

	contentType := f.MimeType
	if strings.HasPrefix(f.MimeType, "application/vnd.google-apps") {
		contentType = "text/plain"
	}
	return Document{
		Name:        f.Name,
		ContentType: contentType,
		Data:        data,
		Metadata:    g.conn.Metadata,
	}
}

// classifyDriveError maps Drive API failures onto the job error taxonomy.
func classifyDriveError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == 401 || apiErr.Code == 403:
			return &models.AuthError{Err: err}
		case apiErr.Code == 429 || apiErr.Code >= 500:
			return &models.TransientError{Err: err}
		}
		return err
	}
	// Network-level failure.
	return &models.TransientError{Err: err}
}
