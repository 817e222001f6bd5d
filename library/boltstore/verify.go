package boltstore

import (
	"bytes"
	"encoding/json"
	"fmt"

	"bitbucket.org/kleinnic74/pinphotos/library"
	bolt "go.etcd.io/bbolt"
)

// Report is the outcome of Verify
type Report struct {
	Pins         int      `json:"pins"`
	Photos       int      `json:"photos"`
	ContentBytes int      `json:"contentBytes"`
	Problems     []string `json:"problems,omitempty"`
}

func (r *Report) problem(format string, args ...interface{}) {
	r.Problems = append(r.Problems, fmt.Sprintf(format, args...))
}

func (r Report) OK() bool {
	return len(r.Problems) == 0
}

// Verify checks that the pin and photo indexes of the store agree with each
// other and that every photo has content
func Verify(tx *bolt.Tx) (Report, error) {
	var r Report
	for _, name := range Buckets {
		if tx.Bucket(name) == nil {
			return r, fmt.Errorf("missing bucket %s", name)
		}
	}
	pins, ids := tx.Bucket(pinsBucket), tx.Bucket(pinIDsBucket)
	err := pins.ForEach(func(k, v []byte) error {
		var pin library.Pin
		if err := json.Unmarshal(v, &pin); err != nil {
			return err
		}
		r.Pins++
		if key := ids.Get([]byte(pin.ID)); !bytes.Equal(key, k) {
			r.problem("pin %s is not indexed", pin.ID)
		}
		return nil
	})
	if err != nil {
		return r, err
	}
	if n := ids.Stats().KeyN; n != r.Pins {
		r.problem("%d pin ids for %d pins", n, r.Pins)
	}

	refs, content := tx.Bucket(photoPinsBucket), tx.Bucket(contentBucket)
	err = tx.Bucket(photosBucket).ForEach(func(pin, v []byte) error {
		if v != nil {
			r.problem("unexpected value in photos bucket: %s", pin)
			return nil
		}
		if ids.Get(pin) == nil {
			r.problem("photos of unknown pin %s", pin)
		}
		return tx.Bucket(photosBucket).Bucket(pin).ForEach(func(k, v []byte) error {
			var p library.Photo
			if err := json.Unmarshal(v, &p); err != nil {
				return err
			}
			r.Photos++
			if ref := refs.Get([]byte(p.ID)); !bytes.Equal(ref, photoRef(library.PinID(pin), p.Seq)) {
				r.problem("photo %s of pin %s has a bad reference", p.ID, pin)
			}
			data := content.Get([]byte(p.ID))
			if data == nil {
				r.problem("photo %s has no content", p.ID)
			}
			r.ContentBytes += len(data)
			return nil
		})
	})
	if err != nil {
		return r, err
	}
	if n := refs.Stats().KeyN; n != r.Photos {
		r.problem("%d photo references for %d photos", n, r.Photos)
	}
	if n := content.Stats().KeyN; n != r.Photos {
		r.problem("%d contents for %d photos", n, r.Photos)
	}
	return r, nil
}
