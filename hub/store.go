package hub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hidal-go/hidalgo/kv"
	"github.com/hidal-go/hidalgo/kv/flat"
	"golang.org/x/crypto/bcrypt"
)

// Store persists everything that must survive a restart but doesn't
// belong in the in-memory roster: operator accounts and ban records.
// spec.md treats the original hub's account/ban files as out of scope
// for the wire protocol it documents; SPEC_FULL.md Section C brings them
// back using hidal-go/hidalgo's generic key/value interface rather than
// a bespoke file format. OpenStore opens hidalgo's flat key/value store
// at a path; the tests point it at a temporary directory.
type Store struct {
	kv kv.KV
}

var (
	accountsBucket = kv.Key{[]byte("accounts")}
	bansBucket     = kv.Key{[]byte("bans")}
)

// Account is a hub operator's persisted login.
type Account struct {
	Name       string `json:"name"`
	PassHash   string `json:"pass_hash"` // bcrypt, distinct from the protocol's Tiger challenge
	Level      int    `json:"level"`     // 0 = user, 1 = operator, 2 = owner
	RegisterAt int64  `json:"register_at"`
}

// Ban is a persisted restriction on a CID, IP, or nickname. Completes the
// "TODO add bantime to somewhere" left in
// original_source/ADCClient.cpp's doBanBy.
type Ban struct {
	Target    string `json:"target"` // CID string, IP, or nick depending on Kind
	Kind      string `json:"kind"`   // "cid", "ip", "nick"
	Reason    string `json:"reason"`
	By        string `json:"by"`
	ExpiresAt int64  `json:"expires_at"` // unix seconds, 0 = permanent
}

// OpenStore opens (creating if absent) a hidalgo flat key/value store
// rooted at dir.
func OpenStore(dir string) (*Store, error) {
	reg := flat.RegistryKV
	db, err := reg.OpenPath(dir)
	if err != nil {
		return nil, fmt.Errorf("opening store at %s: %w", dir, err)
	}
	return &Store{kv: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if c, ok := s.kv.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

// PutAccount creates or updates an operator account, hashing password
// with bcrypt.
func (s *Store) PutAccount(ctx context.Context, name, password string, level int) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	acc := Account{Name: name, PassHash: string(hash), Level: level}
	return s.putJSON(ctx, accountsBucket, name, acc)
}

// Account fetches an operator account by name.
func (s *Store) Account(ctx context.Context, name string) (*Account, error) {
	var acc Account
	ok, err := s.getJSON(ctx, accountsBucket, name, &acc)
	if err != nil || !ok {
		return nil, err
	}
	return &acc, nil
}

// CheckPassword verifies a plaintext password against a stored account.
func (s *Store) CheckPassword(ctx context.Context, name, password string) (bool, error) {
	acc, err := s.Account(ctx, name)
	if err != nil || acc == nil {
		return false, err
	}
	return bcrypt.CompareHashAndPassword([]byte(acc.PassHash), []byte(password)) == nil, nil
}

// PutBan persists a ban record keyed by its target string.
func (s *Store) PutBan(ctx context.Context, b Ban) error {
	return s.putJSON(ctx, bansBucket, b.Kind+":"+b.Target, b)
}

// RemoveBan lifts a ban.
func (s *Store) RemoveBan(ctx context.Context, kind, target string) error {
	tx, err := s.kv.Tx(true)
	if err != nil {
		return err
	}
	defer tx.Close()
	if err := tx.Del(append(bansBucket, kv.Key{[]byte(kind + ":" + target)}...)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Ban looks up an active ban by kind+target, ignoring expired entries.
func (s *Store) Ban(ctx context.Context, kind, target string, now int64) (*Ban, error) {
	var b Ban
	ok, err := s.getJSON(ctx, bansBucket, kind+":"+target, &b)
	if err != nil || !ok {
		return nil, err
	}
	if b.ExpiresAt != 0 && b.ExpiresAt < now {
		return nil, nil
	}
	return &b, nil
}

func (s *Store) putJSON(ctx context.Context, bucket kv.Key, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	tx, err := s.kv.Tx(true)
	if err != nil {
		return err
	}
	defer tx.Close()
	full := append(append(kv.Key{}, bucket...), kv.Key{[]byte(key)}...)
	if err := tx.Put(full, data); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) getJSON(ctx context.Context, bucket kv.Key, key string, v interface{}) (bool, error) {
	tx, err := s.kv.Tx(false)
	if err != nil {
		return false, err
	}
	defer tx.Close()
	full := append(append(kv.Key{}, bucket...), kv.Key{[]byte(key)}...)
	data, err := tx.Get(full)
	if err != nil {
		if err == kv.ErrNotFound {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, err
	}
	return true, nil
}
