package persistence

import (
	"bytes"
	"compress/gzip"
	"io"

	"github.com/pkg/errors"

	"github.com/opendut/carl/pkg/gziputil"
)

// Compressed wraps an underlying Snapshotter, gzip-compressing what it
// writes. Load tolerates reading back an older, uncompressed snapshot (e.g.
// one saved before compression was enabled on a deployment) by checking the
// gzip magic header before deciding whether to gunzip.
type Compressed struct {
	inner Snapshotter
}

// NewCompressed wraps inner with gzip compression at the default level.
func NewCompressed(inner Snapshotter) *Compressed {
	return &Compressed{inner: inner}
}

func (c *Compressed) Load() (io.ReadCloser, error) {
	r, err := c.inner.Load()
	if err != nil || r == nil {
		return r, err
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "reading compressed snapshot")
	}

	compressed, err := gziputil.IsCompressed(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "inspecting snapshot for gzip header")
	}
	if !compressed {
		return io.NopCloser(bytes.NewReader(data)), nil
	}

	gr, err := gziputil.NewGunzipReadCloser(io.NopCloser(bytes.NewReader(data)))
	if err != nil {
		return nil, errors.Wrap(err, "opening gzip snapshot reader")
	}
	defer gr.Close()
	plaintext, err := io.ReadAll(gr)
	if err != nil {
		return nil, errors.Wrap(err, "decompressing snapshot")
	}
	return io.NopCloser(bytes.NewReader(plaintext)), nil
}

func (c *Compressed) Save(r io.Reader) error {
	gr := gziputil.NewGzipReadCloser(io.NopCloser(r), gzip.DefaultCompression)
	defer gr.Close()
	data, err := io.ReadAll(gr)
	if err != nil {
		return errors.Wrap(err, "compressing snapshot")
	}
	return c.inner.Save(bytes.NewReader(data))
}
