package cli

import (
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Dcup-dev/dcup-ingest/internal/models"
)

var (
	submitConnection string
	submitService    string
	submitFiles      []string
	submitTexts      []string
	submitLinks      []string
	submitMetadata   string
	submitPageLimit  int
	submitFileLimit  int
	submitWatch      bool
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Enqueue an ingestion job",
	Long: `Enqueue an ingestion job for a connection.

For direct uploads, pass content with --file, --text, or --link. For
connector-backed services (GOOGLE_DRIVE, AWS_S3) the source is resolved
from the stored connection.

Examples:
  dcup submit -c conn-1 --file report.pdf --file notes.md
  dcup submit -c conn-1 --text "inline snippet" --link https://example.com/doc.txt
  dcup submit -c conn-2 -s GOOGLE_DRIVE --page-limit 100
  dcup submit -c conn-3 -s AWS_S3 --watch`,
	RunE: runSubmit,
}

func init() {
	submitCmd.Flags().StringVarP(&submitConnection, "connection", "c", "", "connection id (required)")
	submitCmd.Flags().StringVarP(&submitService, "service", "s", string(models.ServiceDirectUpload), "source service (DIRECT_UPLOAD, GOOGLE_DRIVE, AWS_S3)")
	submitCmd.Flags().StringSliceVar(&submitFiles, "file", nil, "file to upload (repeatable)")
	submitCmd.Flags().StringSliceVar(&submitTexts, "text", nil, "inline text to ingest (repeatable)")
	submitCmd.Flags().StringSliceVar(&submitLinks, "link", nil, "URL to fetch and ingest (repeatable)")
	submitCmd.Flags().StringVar(&submitMetadata, "metadata", "", "metadata JSON stamped into every chunk")
	submitCmd.Flags().IntVar(&submitPageLimit, "page-limit", 0, "max pages to process (0 = connection default)")
	submitCmd.Flags().IntVar(&submitFileLimit, "file-limit", 0, "max files to process (0 = connection default)")
	submitCmd.Flags().BoolVarP(&submitWatch, "watch", "w", false, "stream progress until the job settles")
	submitCmd.MarkFlagRequired("connection")
}

func runSubmit(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	payload := models.JobPayload{
		ConnectionID: submitConnection,
		Service:      models.Service(submitService),
		Texts:        submitTexts,
		Links:        submitLinks,
		Metadata:     submitMetadata,
	}
	if submitPageLimit > 0 {
		payload.PageLimit = &submitPageLimit
	}
	if submitFileLimit > 0 {
		payload.FileLimit = &submitFileLimit
	}

	for _, path := range submitFiles {
		file, err := readUpload(path)
		if err != nil {
			return err
		}
		payload.Files = append(payload.Files, file)
	}

	jobID, err := api.SubmitJob(ctx, payload)
	if err != nil {
		return fmt.Errorf("submit job: %w", err)
	}
	fmt.Printf("Job %s enqueued\n", jobID)

	if submitWatch {
		return watchConnection(ctx, submitConnection)
	}
	return nil
}

// readUpload loads one local file into the serialized payload form.
func readUpload(path string) (models.SerializedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.SerializedFile{}, fmt.Errorf("read %s: %w", path, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return models.SerializedFile{}, fmt.Errorf("stat %s: %w", path, err)
	}

	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	return models.SerializedFile{
		Name:         filepath.Base(path),
		Size:         info.Size(),
		Type:         contentType,
		LastModified: info.ModTime().UnixMilli(),
		Content:      base64.StdEncoding.EncodeToString(data),
	}, nil
}
