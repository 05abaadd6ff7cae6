package sessions

import (
	memdb "github.com/hashicorp/go-memdb"
)

const (
	memdbTable = "sessions"
)

// lookupOrder is the priority used when a nickname is present in several
// buckets.
var lookupOrder = []Bucket{BucketOwner, BucketAdmin, BucketConsole, BucketUser}

type Store interface {
	ByID(id string) (Session, error)
	ByNickname(nickname string) (Session, error)
	AllByNickname(nickname string) ([]Session, error)
	ByBucket(bucket Bucket) ([]Session, error)
	ByPeer(peer string) ([]Session, error)
	All() ([]Session, error)
	Upsert(sess Session) error
	ReplaceOwner(sess Session) ([]Session, error)
	Delete(id string) error
}

type memDBStore struct {
	db *memdb.MemDB
}

func NewStore() Store {
	db, err := memdb.NewMemDB(&memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			memdbTable: {
				Name: memdbTable,
				Indexes: map[string]*memdb.IndexSchema{
					"id": {
						Name: "id",
						Indexer: &memdb.StringFieldIndex{
							Field: "ID",
						},
						Unique:       true,
						AllowMissing: false,
					},
					"nickname": {
						Name: "nickname",
						Indexer: &memdb.StringFieldIndex{
							Field: "Nickname",
						},
						Unique:       false,
						AllowMissing: false,
					},
					"bucket": {
						Name: "bucket",
						Indexer: &memdb.StringFieldIndex{
							Field: "Bucket",
						},
						Unique:       false,
						AllowMissing: false,
					},
					"peer": {
						Name:         "peer",
						AllowMissing: true,
						Unique:       false,
						Indexer:      &memdb.StringFieldIndex{Field: "Peer"},
					},
				},
			},
		},
	})
	if err != nil {
		panic(err)
	}
	return &memDBStore{db: db}
}

func (s *memDBStore) ByID(id string) (Session, error) {
	var session Session
	err := s.read(func(tx *memdb.Txn) error {
		sess, err := s.first(tx, "id", id)
		if err != nil {
			return err
		}
		session = *sess
		return nil
	})
	return session, err
}

func (s *memDBStore) ByNickname(nickname string) (Session, error) {
	set, err := s.AllByNickname(nickname)
	if err != nil {
		return Session{}, err
	}
	for _, bucket := range lookupOrder {
		for _, sess := range set {
			if sess.Bucket == bucket {
				return sess, nil
			}
		}
	}
	return Session{}, ErrSessionNotFound
}

func (s *memDBStore) AllByNickname(nickname string) ([]Session, error) {
	return s.list("nickname", nickname)
}
func (s *memDBStore) ByBucket(bucket Bucket) ([]Session, error) {
	return s.list("bucket", string(bucket))
}
func (s *memDBStore) ByPeer(peer string) ([]Session, error) {
	return s.list("peer", peer)
}
func (s *memDBStore) All() ([]Session, error) {
	return s.list("id")
}

func (s *memDBStore) Upsert(sess Session) error {
	return s.write(func(tx *memdb.Txn) error {
		return tx.Insert(memdbTable, &sess)
	})
}

// ReplaceOwner installs sess as the only owner session and returns the
// entries it displaced.
func (s *memDBStore) ReplaceOwner(sess Session) ([]Session, error) {
	sess.Bucket = BucketOwner
	displaced := []Session{}
	err := s.write(func(tx *memdb.Txn) error {
		iterator, err := tx.Get(memdbTable, "bucket", string(BucketOwner))
		if err != nil {
			return err
		}
		previous := []*Session{}
		for payload := iterator.Next(); payload != nil; payload = iterator.Next() {
			previous = append(previous, payload.(*Session))
		}
		for _, old := range previous {
			if err := tx.Delete(memdbTable, old); err != nil {
				return err
			}
			if old.ID != sess.ID {
				displaced = append(displaced, *old)
			}
		}
		return tx.Insert(memdbTable, &sess)
	})
	return displaced, err
}

func (s *memDBStore) Delete(id string) error {
	return s.write(func(tx *memdb.Txn) error {
		sess, err := s.first(tx, "id", id)
		if err != nil {
			return nil
		}
		return tx.Delete(memdbTable, sess)
	})
}

func (s *memDBStore) list(index string, args ...interface{}) ([]Session, error) {
	set := []Session{}
	err := s.read(func(tx *memdb.Txn) error {
		iterator, err := tx.Get(memdbTable, index, args...)
		if err != nil || iterator == nil {
			return ErrSessionNotFound
		}
		for {
			payload := iterator.Next()
			if payload == nil {
				return nil
			}
			set = append(set, *payload.(*Session))
		}
	})
	return set, err
}

func (s *memDBStore) read(statement func(tx *memdb.Txn) error) error {
	tx := s.db.Txn(false)
	return s.run(tx, statement)
}
func (s *memDBStore) write(statement func(tx *memdb.Txn) error) error {
	tx := s.db.Txn(true)
	return s.run(tx, statement)
}
func (s *memDBStore) run(tx *memdb.Txn, statement func(tx *memdb.Txn) error) error {
	defer tx.Abort()
	err := statement(tx)
	if err != nil {
		return err
	}
	tx.Commit()
	return nil
}
func (s *memDBStore) first(tx *memdb.Txn, index string, id string) (*Session, error) {
	data, err := tx.First(memdbTable, index, id)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, ErrSessionNotFound
	}
	return data.(*Session), nil
}
