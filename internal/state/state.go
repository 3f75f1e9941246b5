package state

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketUnmutes = []byte("pending_unmutes")
	bucketMenus   = []byte("menus")
)

// Store keeps process state that must survive a restart.
type Store struct {
	db *bolt.DB
}

// PendingUnmute is a scheduled mute expiry.
type PendingUnmute struct {
	GuildID   string    `json:"guild_id"`
	UserID    string    `json:"user_id"`
	ChannelID string    `json:"channel_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

const (
	MenuRoles        = "roles"
	MenuVerification = "verification"
)

// Menu is a bot-posted message whose reactions are tracked.
type Menu struct {
	Kind      string `json:"kind"`
	ChannelID string `json:"channel_id"`
	MessageID string `json:"message_id"`
	UserID    string `json:"user_id,omitempty"`
}

func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 10 * time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketUnmutes, bucketMenus} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) PutPendingUnmute(p PendingUnmute) error {
	if p.GuildID == "" || p.UserID == "" {
		return errors.New("pending unmute requires guild and user")
	}
	return s.put(bucketUnmutes, unmuteKey(p.GuildID, p.UserID), p)
}

func (s *Store) DeletePendingUnmute(guildID, userID string) error {
	return s.delete(bucketUnmutes, unmuteKey(guildID, userID))
}

func (s *Store) ListPendingUnmutes() ([]PendingUnmute, error) {
	var out []PendingUnmute
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketUnmutes).ForEach(func(_, v []byte) error {
			var p PendingUnmute
			if err := json.Unmarshal(v, &p); err != nil {
				return err
			}
			out = append(out, p)
			return nil
		})
	})
	return out, err
}

func (s *Store) PutMenu(m Menu) error {
	if m.MessageID == "" {
		return errors.New("menu requires a message id")
	}
	return s.put(bucketMenus, []byte(m.MessageID), m)
}

func (s *Store) DeleteMenu(messageID string) error {
	return s.delete(bucketMenus, []byte(messageID))
}

// ListMenus returns tracked menus of the given kind, or all when kind is empty.
func (s *Store) ListMenus(kind string) ([]Menu, error) {
	var out []Menu
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMenus).ForEach(func(_, v []byte) error {
			var m Menu
			if err := json.Unmarshal(v, &m); err != nil {
				return err
			}
			if kind == "" || m.Kind == kind {
				out = append(out, m)
			}
			return nil
		})
	})
	return out, err
}

func (s *Store) put(bucket, key []byte, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Put(key, data)
	})
}

func (s *Store) delete(bucket, key []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Delete(key)
	})
}

func unmuteKey(guildID, userID string) []byte {
	return []byte(guildID + ":" + userID)
}
