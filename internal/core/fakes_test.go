package core

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/edvin/metering/internal/blob"
	"github.com/edvin/metering/internal/render"
)

// fakeStore is an in-memory write-once blob.Store.
type fakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
	onPut   func(key string)
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: map[string][]byte{}}
}

func (s *fakeStore) Put(ctx context.Context, key string, body io.Reader, opts blob.PutOptions) (blob.ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return blob.ObjectInfo{}, s.putErr
	}
	if _, ok := s.objects[key]; ok {
		return blob.ObjectInfo{}, blob.ErrExists
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return blob.ObjectInfo{}, err
	}
	s.objects[key] = data
	if s.onPut != nil {
		s.onPut(key)
	}
	return blob.ObjectInfo{Key: key, Size: int64(len(data)), ContentType: opts.ContentType}, nil
}

func (s *fakeStore) Get(ctx context.Context, key string) (io.ReadCloser, blob.ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, blob.ObjectInfo{}, blob.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), blob.ObjectInfo{
		Key:         key,
		Size:        int64(len(data)),
		ContentType: render.ContentTypePDF,
	}, nil
}

// fakeRenderer records the documents it was asked to render.
type fakeRenderer struct {
	docs []render.Document
	err  error
}

func (r *fakeRenderer) Render(ctx context.Context, doc render.Document) ([]byte, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.docs = append(r.docs, doc)
	return []byte("%PDF-1.4 " + doc.InvoiceID), nil
}
