// Package boltstore is an implementation of the pin and photo repository
// using BoltDB for storing data persistently
package boltstore

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"bitbucket.org/kleinnic74/pinphotos/library"
	"bitbucket.org/kleinnic74/pinphotos/logging"

	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"
)

var (
	// seq -> Pin
	pinsBucket = []byte("pins")
	// PinID -> seq key in pinsBucket
	pinIDsBucket = []byte("pinids")
	// PinID -> nested bucket of seq -> Photo
	photosBucket = []byte("photos")
	// PhotoID -> PinID + seq key in the pin's photo bucket
	photoPinsBucket = []byte("photopins")
	// PhotoID -> image bytes
	contentBucket = []byte("content")

	Buckets = [][]byte{pinsBucket, pinIDsBucket, photosBucket, photoPinsBucket, contentBucket}
)

// BoltStore uses BoltDB as the storage implementation for pins and photos.
// BoltDB serializes all write transactions, which makes each pin single-writer.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates the repository buckets in db if needed
func NewBoltStore(db *bolt.DB) (library.ClosableRepository, error) {
	for _, b := range Buckets {
		if err := createBucket(db, b); err != nil {
			return nil, err
		}
	}
	return &BoltStore{db: db}, nil
}

func createBucket(db *bolt.DB, name []byte) error {
	return db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(name)
		return err
	})
}

// Close closes the underlying database
func (store *BoltStore) Close() error {
	return store.db.Close()
}

func (store *BoltStore) AddPin(ctx context.Context, pin *library.Pin) error {
	encoded, err := json.Marshal(pin)
	if err != nil {
		return err
	}
	return store.db.Update(func(tx *bolt.Tx) error {
		ids := tx.Bucket(pinIDsBucket)
		if ids.Get([]byte(pin.ID)) != nil {
			return fmt.Errorf("pin %s already exists", pin.ID)
		}
		pins := tx.Bucket(pinsBucket)
		seq, err := pins.NextSequence()
		if err != nil {
			return err
		}
		key := seqKey(seq)
		if err := pins.Put(key, encoded); err != nil {
			return err
		}
		return ids.Put([]byte(pin.ID), key)
	})
}

func (store *BoltStore) GetPin(ctx context.Context, id library.PinID) (*library.Pin, error) {
	var found *library.Pin
	return found, store.db.View(func(tx *bolt.Tx) error {
		pin, err := getPin(tx, id)
		found = pin
		return err
	})
}

func getPin(tx *bolt.Tx, id library.PinID) (*library.Pin, error) {
	key := tx.Bucket(pinIDsBucket).Get([]byte(id))
	if key == nil {
		return nil, library.NotFound(string(id))
	}
	data := tx.Bucket(pinsBucket).Get(key)
	if data == nil {
		return nil, library.NotFound(string(id))
	}
	var pin library.Pin
	if err := json.Unmarshal(data, &pin); err != nil {
		return nil, err
	}
	return &pin, nil
}

// DeletePin removes the pin and cascades to all of its photos
func (store *BoltStore) DeletePin(ctx context.Context, id library.PinID) error {
	log := logging.From(ctx)
	var deleted int
	err := store.db.Update(func(tx *bolt.Tx) error {
		ids := tx.Bucket(pinIDsBucket)
		key := ids.Get([]byte(id))
		if key == nil {
			return library.NotFound(string(id))
		}
		if err := tx.Bucket(pinsBucket).Delete(key); err != nil {
			return err
		}
		if err := ids.Delete([]byte(id)); err != nil {
			return err
		}
		photos := tx.Bucket(photosBucket)
		pinPhotos := photos.Bucket([]byte(id))
		if pinPhotos == nil {
			return nil
		}
		err := pinPhotos.ForEach(func(k, v []byte) error {
			var p library.Photo
			if err := json.Unmarshal(v, &p); err != nil {
				return err
			}
			deleted++
			return deletePhotoRefs(tx, p.ID)
		})
		if err != nil {
			return err
		}
		return photos.DeleteBucket([]byte(id))
	})
	if err == nil {
		log.Debug("Deleted pin", zap.String("pin", string(id)), zap.Int("photos", deleted))
	}
	return err
}

func (store *BoltStore) FetchPins(ctx context.Context) ([]*library.Pin, error) {
	return store.findPins(func(c Cursor) Cursor {
		return c
	})
}

// FetchPinsPaged returns at most maxCount pins starting at index start and
// whether more pins follow
func (store *BoltStore) FetchPinsPaged(ctx context.Context, start, maxCount uint) ([]*library.Pin, bool, error) {
	found, err := store.findPins(func(c Cursor) Cursor {
		return c.Skip(start).Limit(maxCount + 1)
	})
	if err != nil {
		return nil, false, err
	}
	if uint(len(found)) > maxCount {
		return found[:maxCount], true, nil
	}
	return found, false, nil
}

func (store *BoltStore) findPins(f func(Cursor) Cursor) ([]*library.Pin, error) {
	found := make([]*library.Pin, 0)
	err := store.db.View(func(tx *bolt.Tx) error {
		c := f(newForwardCursor(tx.Bucket(pinsBucket).Cursor()))
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var pin library.Pin
			if err := json.Unmarshal(v, &pin); err != nil {
				return err
			}
			found = append(found, &pin)
		}
		return nil
	})
	return found, err
}

func (store *BoltStore) FetchPhotos(ctx context.Context, pin library.PinID) ([]*library.Photo, error) {
	found := make([]*library.Photo, 0)
	err := store.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(pinIDsBucket).Get([]byte(pin)) == nil {
			return library.NotFound(string(pin))
		}
		b := tx.Bucket(photosBucket).Bucket([]byte(pin))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var p library.Photo
			if err := json.Unmarshal(v, &p); err != nil {
				return err
			}
			found = append(found, &p)
			return nil
		})
	})
	return found, err
}

func (store *BoltStore) CountPhotos(ctx context.Context, pin library.PinID) (int, error) {
	var count int
	return count, store.db.View(func(tx *bolt.Tx) error {
		if b := tx.Bucket(photosBucket).Bucket([]byte(pin)); b != nil {
			count = b.Stats().KeyN
		}
		return nil
	})
}

func (store *BoltStore) AddPhoto(ctx context.Context, pin library.PinID, data []byte) (*library.Photo, error) {
	added, err := store.RunBatch(ctx, library.Batch{Pin: pin, Add: [][]byte{data}})
	if err != nil {
		return nil, err
	}
	return added[0], nil
}

func (store *BoltStore) DeletePhoto(ctx context.Context, id library.PhotoID) error {
	return store.db.Update(func(tx *bolt.Tx) error {
		return deletePhoto(tx, id)
	})
}

func (store *BoltStore) GetPhoto(ctx context.Context, id library.PhotoID) (*library.Photo, error) {
	var found *library.Photo
	return found, store.db.View(func(tx *bolt.Tx) error {
		p, _, err := getPhoto(tx, id)
		found = p
		return err
	})
}

func (store *BoltStore) PhotoContent(ctx context.Context, id library.PhotoID) ([]byte, *library.Photo, error) {
	var content []byte
	var found *library.Photo
	err := store.db.View(func(tx *bolt.Tx) error {
		p, _, err := getPhoto(tx, id)
		if err != nil {
			return err
		}
		data := tx.Bucket(contentBucket).Get([]byte(id))
		if data == nil {
			return library.NotFound(string(id))
		}
		// bolt values are only valid for the lifetime of the transaction
		content = make([]byte, len(data))
		copy(content, data)
		found = p
		return nil
	})
	return content, found, err
}

// RunBatch deletes and adds photos of one pin in a single transaction
func (store *BoltStore) RunBatch(ctx context.Context, b library.Batch) ([]*library.Photo, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	log := logging.From(ctx)
	added := make([]*library.Photo, 0, len(b.Add))
	err := store.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(pinIDsBucket).Get([]byte(b.Pin)) == nil {
			return library.NotFound(string(b.Pin))
		}
		for _, id := range b.Delete {
			p, _, err := getPhoto(tx, id)
			if err != nil {
				return err
			}
			if p.Pin != b.Pin {
				return fmt.Errorf("photo %s does not belong to pin %s", id, b.Pin)
			}
			if err := deletePhoto(tx, id); err != nil {
				return err
			}
		}
		pinPhotos, err := tx.Bucket(photosBucket).CreateBucketIfNotExists([]byte(b.Pin))
		if err != nil {
			return err
		}
		for _, data := range b.Add {
			p := library.NewPhoto(b.Pin, data)
			seq, err := pinPhotos.NextSequence()
			if err != nil {
				return err
			}
			p.Seq = seq
			encoded, err := json.Marshal(p)
			if err != nil {
				return err
			}
			if err := pinPhotos.Put(seqKey(seq), encoded); err != nil {
				return err
			}
			if err := tx.Bucket(photoPinsBucket).Put([]byte(p.ID), photoRef(b.Pin, seq)); err != nil {
				return err
			}
			if err := tx.Bucket(contentBucket).Put([]byte(p.ID), data); err != nil {
				return err
			}
			added = append(added, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Debug("Batch committed", zap.String("pin", string(b.Pin)),
		zap.Int("deleted", len(b.Delete)), zap.Int("added", len(added)))
	return added, nil
}

// getPhoto returns the photo and the key of its record in the pin's bucket
func getPhoto(tx *bolt.Tx, id library.PhotoID) (*library.Photo, []byte, error) {
	ref := tx.Bucket(photoPinsBucket).Get([]byte(id))
	if len(ref) <= 8 {
		return nil, nil, library.NotFound(string(id))
	}
	pin, key := ref[:len(ref)-8], append([]byte(nil), ref[len(ref)-8:]...)
	b := tx.Bucket(photosBucket).Bucket(pin)
	if b == nil {
		return nil, nil, library.NotFound(string(id))
	}
	data := b.Get(key)
	if data == nil {
		return nil, nil, library.NotFound(string(id))
	}
	var p library.Photo
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, nil, err
	}
	return &p, key, nil
}

func deletePhoto(tx *bolt.Tx, id library.PhotoID) error {
	p, key, err := getPhoto(tx, id)
	if err != nil {
		return err
	}
	if err := tx.Bucket(photosBucket).Bucket([]byte(p.Pin)).Delete(key); err != nil {
		return err
	}
	return deletePhotoRefs(tx, id)
}

func deletePhotoRefs(tx *bolt.Tx, id library.PhotoID) error {
	if err := tx.Bucket(photoPinsBucket).Delete([]byte(id)); err != nil {
		return err
	}
	return tx.Bucket(contentBucket).Delete([]byte(id))
}

func photoRef(pin library.PinID, seq uint64) []byte {
	return append([]byte(pin), seqKey(seq)...)
}

func seqKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}
