// Package storage wraps the external object storage collaborator used for
// message attachments.
package storage

import "context"

// ObjectStore abstracts attachment storage. Upload must fully succeed before
// a message embedding the object's URL is created.
type ObjectStore interface {
	Upload(ctx context.Context, bucket, path string, data []byte, contentType string) error
	PublicURL(bucket, path string) string
}
