package persistence

import (
	"bytes"
	"io"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/pkg/errors"
)

var bucketName = []byte("carl-resources")
var snapshotKey = []byte("snapshot")

// Bbolt is a Snapshotter backed by a single bbolt database file, following
// the same bolt.Open(path, 0600, &bolt.Options{Timeout: ...}) pattern the
// teacher uses to open its member databases.
type Bbolt struct {
	db *bolt.DB
}

func OpenBbolt(path string) (*Bbolt, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, errors.Wrap(err, "opening bbolt snapshot database")
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "creating bbolt snapshot bucket")
	}
	return &Bbolt{db: db}, nil
}

func (b *Bbolt) Close() error {
	return b.db.Close()
}

func (b *Bbolt) Load() (io.ReadCloser, error) {
	var data []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketName).Get(snapshotKey)
		if v == nil {
			return nil
		}
		data = make([]byte, len(v))
		copy(data, v)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "reading bbolt snapshot")
	}
	if data == nil {
		return nil, nil
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (b *Bbolt) Save(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return errors.Wrap(err, "buffering snapshot for bbolt write")
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put(snapshotKey, data)
	})
}
