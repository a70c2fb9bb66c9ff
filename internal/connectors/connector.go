// Package connectors normalizes heterogeneous document sources into one
// lazy document stream. Variants cover direct uploads (content embedded in
// the job payload) and external services (Google Drive, S3).
package connectors

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Dcup-dev/dcup-ingest/internal/models"
)

// ErrStopIteration ends a document stream early without error. A consumer
// returns it from the visit function, typically after observing a
// cancellation signal.
var ErrStopIteration = errors.New("stop iteration")

// Document is one normalized source item. A fetch failure for a single
// item does not abort the stream; it is yielded with Err set so the caller
// can record the failure and continue.
type Document struct {
	Name        string // acts as the document id
	ContentType string
	Data        []byte
	Metadata    string
	Err         error
}

// Connector streams the documents of one source in order. The stream is
// lazy, finite and non-restartable; fn is called once per document.
type Connector interface {
	Documents(ctx context.Context, fn func(Document) error) error
}

// TokenSaver persists refreshed OAuth credentials for a connection.
type TokenSaver func(ctx context.Context, connectionID, accessToken, refreshToken string, expiry *time.Time) error

// Factory builds connectors for connection-backed sources.
type Factory struct {
	GoogleClientID     string
	GoogleClientSecret string
	SaveToken          TokenSaver
}

// ForConnection returns the connector for an external-service connection.
// Direct uploads do not go through the factory; see NewDirectUpload.
func (f *Factory) ForConnection(conn *models.Connection, payload models.JobPayload) (Connector, error) {
	switch conn.Service {
	case models.ServiceGoogleDrive:
		return newGoogleDrive(conn, payload, f.GoogleClientID, f.GoogleClientSecret, f.SaveToken), nil
	case models.ServiceAWSS3:
		return newS3(conn, payload), nil
	default:
		return nil, models.NewValidationError("unsupported service %q", conn.Service)
	}
}

// limitOrDefault resolves the effective limit from payload override and
// connection config. Zero means unlimited.
func limitOrDefault(payloadLimit, connLimit *int) int {
	if payloadLimit != nil {
		return *payloadLimit
	}
	if connLimit != nil {
		return *connLimit
	}
	return 0
}

func fetchFailure(name string, err error) Document {
	return Document{Name: name, Err: fmt.Errorf("fetch %s: %w", name, err)}
}
