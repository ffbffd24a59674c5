package stores

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const pendingRecordVersion1 = 1

var (
	ErrPendingNotFound = errors.New("pending handle not found")
	ErrPendingMismatch = errors.New("pending handle subject mismatch")
	ErrPendingBackend  = errors.New("pending handle backend unavailable")
)

// PendingHandle is the server-side shadow of a pending second-factor token.
type PendingHandle struct {
	IdentityID string
	ExpiresAt  int64
}

// PendingHandleStore records which pending handles are still unused.
type PendingHandleStore struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewPendingHandleStore(redisClient redis.UniversalClient, prefix string) *PendingHandleStore {
	if prefix == "" {
		prefix = "pmh"
	}
	return &PendingHandleStore{
		redis:  redisClient,
		prefix: prefix,
		now:    time.Now,
	}
}

// WithClock replaces time.Now for the expiry check in Consume.
func (s *PendingHandleStore) WithClock(now func() time.Time) *PendingHandleStore {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *PendingHandleStore) key(handleID string) string {
	return s.prefix + ":" + handleID
}

// Save records handleID as unused until ttl elapses.
func (s *PendingHandleStore) Save(ctx context.Context, handleID string, record *PendingHandle, ttl time.Duration) error {
	if ttl <= 0 {
		return errors.New("pending handle ttl must be > 0")
	}
	encoded, err := encodePendingHandle(record)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(handleID), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrPendingBackend, err)
	}
	return nil
}

// Consume removes handleID and returns what it recorded. identityID must match
// the recorded subject; the record is removed either way.
func (s *PendingHandleStore) Consume(ctx context.Context, handleID, identityID string) (*PendingHandle, error) {
	data, err := s.redis.GetDel(ctx, s.key(handleID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrPendingNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrPendingBackend, err)
	}

	record, err := decodePendingHandle(data)
	if err != nil {
		return nil, err
	}
	if s.now().Unix() > record.ExpiresAt {
		return nil, ErrPendingNotFound
	}
	if record.IdentityID != identityID {
		return nil, ErrPendingMismatch
	}
	return record, nil
}

// Exists reports whether handleID is still unused.
func (s *PendingHandleStore) Exists(ctx context.Context, handleID string) (bool, error) {
	n, err := s.redis.Exists(ctx, s.key(handleID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrPendingBackend, err)
	}
	return n > 0, nil
}

func encodePendingHandle(record *PendingHandle) ([]byte, error) {
	if record == nil {
		return nil, errors.New("nil pending handle")
	}
	if len(record.IdentityID) > 65535 {
		return nil, errors.New("pending handle subject length exceeded")
	}

	var buf bytes.Buffer
	buf.WriteByte(pendingRecordVersion1)
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.IdentityID))); err != nil {
		return nil, err
	}
	buf.WriteString(record.IdentityID)
	return buf.Bytes(), nil
}

func decodePendingHandle(data []byte) (*PendingHandle, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != pendingRecordVersion1 {
		return nil, errors.New("invalid pending handle version")
	}

	record := &PendingHandle{}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}

	var idLen uint16
	if err := binary.Read(reader, binary.BigEndian, &idLen); err != nil {
		return nil, err
	}
	id := make([]byte, idLen)
	if _, err := io.ReadFull(reader, id); err != nil {
		return nil, err
	}
	record.IdentityID = string(id)
	return record, nil
}
