// Package gcs keeps ledger backups as JSON envelopes in Google Cloud Storage.
package gcs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"cloud.google.com/go/storage"

	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/dvloznov/finance-ledger/internal/logger"
	"github.com/dvloznov/finance-ledger/internal/persist"
)

// uploadTimeout bounds a single object write.
const uploadTimeout = 2 * time.Minute

// object is the slice of an object handle the store needs.
type object interface {
	NewWriter(ctx context.Context) io.WriteCloser
	NewReader(ctx context.Context) (io.ReadCloser, error)
}

type gcsObject struct {
	h *storage.ObjectHandle
}

func (o gcsObject) NewWriter(ctx context.Context) io.WriteCloser {
	w := o.h.NewWriter(ctx)
	w.ContentType = "application/json"
	return w
}

func (o gcsObject) NewReader(ctx context.Context) (io.ReadCloser, error) {
	r, err := o.h.NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, persist.ErrNoState
	}
	return r, err
}

// Store saves and loads one object. The storage client is owned by the
// caller.
type Store struct {
	obj object
	uri string
	now func() time.Time
}

// New creates a Store for gs://bucket/objectName.
func New(client *storage.Client, bucket, objectName string) *Store {
	return newStore(gcsObject{h: client.Bucket(bucket).Object(objectName)}, URI(bucket, objectName))
}

func newStore(obj object, uri string) *Store {
	return &Store{obj: obj, uri: uri, now: time.Now}
}

// URI is the gs:// address of the backup object.
func (s *Store) URI() string { return s.uri }

// Save uploads st, replacing the previous object.
func (s *Store) Save(ctx context.Context, st domain.State) error {
	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	w := s.obj.NewWriter(ctx)
	bw := bufio.NewWriter(w)
	if err := persist.Encode(bw, st, s.now()); err != nil {
		_ = w.Close()
		return fmt.Errorf("gcs.Save: %w", err)
	}
	if err := bw.Flush(); err != nil {
		_ = w.Close()
		return fmt.Errorf("gcs.Save: write: %w", err)
	}
	// Close finalizes the upload.
	if err := w.Close(); err != nil {
		return fmt.Errorf("gcs.Save: finalize upload: %w", err)
	}

	log := logger.FromContext(ctx)
	log.Info().Str("uri", s.uri).Msg("ledger backup uploaded")
	return nil
}

// Load downloads the backup. A missing object is persist.ErrNoState.
func (s *Store) Load(ctx context.Context) (domain.State, error) {
	r, err := s.obj.NewReader(ctx)
	if errors.Is(err, persist.ErrNoState) {
		return domain.State{}, err
	}
	if err != nil {
		return domain.State{}, fmt.Errorf("gcs.Load: open %s: %w", s.uri, err)
	}
	defer r.Close()

	env, err := persist.Decode(bufio.NewReader(r))
	if err != nil {
		return domain.State{}, fmt.Errorf("gcs.Load: %s: %w", s.uri, err)
	}
	return env.State, nil
}

// URI formats a gs:// address.
func URI(bucket, objectName string) string {
	return "gs://" + bucket + "/" + objectName
}

// ParseURI splits gs://bucket/path/to/object into its bucket and object.
func ParseURI(uri string) (bucket, objectName string, err error) {
	if !strings.HasPrefix(uri, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", uri)
	}
	parts := strings.SplitN(strings.TrimPrefix(uri, "gs://"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", uri)
	}
	return parts[0], parts[1], nil
}

var _ persist.Persister = (*Store)(nil)
