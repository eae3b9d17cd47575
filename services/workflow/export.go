package workflow

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"

	"outreach-controlplane/services/lead"

	"github.com/minio/minio-go/v7"
)

// Exporter stores the leads found by a SEARCH execution and returns the
// object key.
type Exporter interface {
	Export(ctx context.Context, wf *Workflow, historyID string, leads []*lead.Lead) (string, error)
}

type minioExporter struct {
	client *minio.Client
	bucket string
}

func NewMinioExporter(client *minio.Client, bucket string) Exporter {
	return &minioExporter{client: client, bucket: bucket}
}

var exportHeader = []string{
	"private_identifier", "public_identifier", "first_name", "last_name", "headline",
	"location", "company", "profile_url", "connections_count", "network_distance",
}

func (e *minioExporter) Export(ctx context.Context, wf *Workflow, historyID string, leads []*lead.Lead) (string, error) {
	body, err := encodeCSV(leads)
	if err != nil {
		return "", err
	}

	key := fmt.Sprintf("exports/%s/%s/%s.csv", wf.CompanyID, wf.ID, historyID)
	_, err = e.client.PutObject(ctx, e.bucket, key, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: "text/csv",
	})
	if err != nil {
		return "", fmt.Errorf("upload export %s: %w", key, err)
	}
	return key, nil
}

func encodeCSV(leads []*lead.Lead) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(exportHeader); err != nil {
		return nil, err
	}
	for _, l := range leads {
		err := w.Write([]string{
			l.PrivateID(), l.PublicIdentifier, l.FirstName, l.LastName, l.Headline,
			l.Location, l.Company, l.ProfileURL, strconv.Itoa(l.ConnectionsCount), l.NetworkDistance,
		})
		if err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}
