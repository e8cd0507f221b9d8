package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRefreshTTL = 30 * 24 * time.Hour

// RefreshTokenStore registra cada refresh token emitido (jti) junto a su
// dueño. Un jti ausente o vencido ya no sirve para rotar.
type RefreshTokenStore interface {
	Store(ctx context.Context, jti, userID string, ttl time.Duration) error
	// Owner devuelve el usuario dueño del jti, o ok=false si no esta vigente.
	Owner(ctx context.Context, jti string) (userID string, ok bool, err error)
	Revoke(ctx context.Context, jti string) error
	// RevokeAllForUser invalida todas las sesiones abiertas del usuario.
	RevokeAllForUser(ctx context.Context, userID string) error
}

type refreshSession struct {
	userID    string
	expiresAt time.Time
}

type memoryRefreshTokenStore struct {
	mu       sync.Mutex
	sessions map[string]refreshSession
	byUser   map[string]map[string]struct{}
	now      func() time.Time
}

func NewMemoryRefreshTokenStore() RefreshTokenStore {
	return &memoryRefreshTokenStore{
		sessions: make(map[string]refreshSession),
		byUser:   make(map[string]map[string]struct{}),
		now:      time.Now,
	}
}

func (s *memoryRefreshTokenStore) Store(_ context.Context, jti, userID string, ttl time.Duration) error {
	jti, userID = strings.TrimSpace(jti), strings.TrimSpace(userID)
	if jti == "" || userID == "" {
		return errInvalidSession
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[jti] = refreshSession{userID: userID, expiresAt: s.now().Add(sessionTTL(ttl))}
	jtis, ok := s.byUser[userID]
	if !ok {
		jtis = make(map[string]struct{})
		s.byUser[userID] = jtis
	}
	jtis[jti] = struct{}{}
	return nil
}

func (s *memoryRefreshTokenStore) Owner(_ context.Context, jti string) (string, bool, error) {
	jti = strings.TrimSpace(jti)
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[jti]
	if !ok {
		return "", false, nil
	}
	if s.now().After(sess.expiresAt) {
		s.dropLocked(jti)
		return "", false, nil
	}
	return sess.userID, true, nil
}

func (s *memoryRefreshTokenStore) Revoke(_ context.Context, jti string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropLocked(strings.TrimSpace(jti))
	return nil
}

func (s *memoryRefreshTokenStore) RevokeAllForUser(_ context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	for jti := range s.byUser[userID] {
		delete(s.sessions, jti)
	}
	delete(s.byUser, userID)
	return nil
}

func (s *memoryRefreshTokenStore) dropLocked(jti string) {
	sess, ok := s.sessions[jti]
	if !ok {
		return
	}
	delete(s.sessions, jti)
	if jtis := s.byUser[sess.userID]; jtis != nil {
		delete(jtis, jti)
		if len(jtis) == 0 {
			delete(s.byUser, sess.userID)
		}
	}
}

// redisSessionClient es el subconjunto de *redis.Client que usa el store.
type redisSessionClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	SAdd(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	SRem(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	SMembers(ctx context.Context, key string) *redis.StringSliceCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// redisRefreshTokenStore guarda auth:refresh:jti:<jti> -> userID y el indice
// auth:refresh:user:<userID> (SET de jti) para revocar por usuario.
type redisRefreshTokenStore struct {
	client redisSessionClient
}

func NewRedisRefreshTokenStore(client *redis.Client) RefreshTokenStore {
	if client == nil {
		return nil
	}
	return &redisRefreshTokenStore{client: client}
}

func sessionKey(jti string) string     { return "auth:refresh:jti:" + jti }
func userSessionsKey(id string) string { return "auth:refresh:user:" + id }

func (s *redisRefreshTokenStore) Store(ctx context.Context, jti, userID string, ttl time.Duration) error {
	jti, userID = strings.TrimSpace(jti), strings.TrimSpace(userID)
	if jti == "" || userID == "" {
		return errInvalidSession
	}
	ttl = sessionTTL(ttl)
	if err := s.client.Set(ctx, sessionKey(jti), userID, ttl).Err(); err != nil {
		return err
	}
	index := userSessionsKey(userID)
	if err := s.client.SAdd(ctx, index, jti).Err(); err != nil {
		return err
	}
	// el indice vive lo mismo que la sesion mas reciente
	return s.client.Expire(ctx, index, ttl).Err()
}

func (s *redisRefreshTokenStore) Owner(ctx context.Context, jti string) (string, bool, error) {
	jti = strings.TrimSpace(jti)
	if jti == "" {
		return "", false, nil
	}
	userID, err := s.client.Get(ctx, sessionKey(jti)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return userID, true, nil
}

func (s *redisRefreshTokenStore) Revoke(ctx context.Context, jti string) error {
	userID, ok, err := s.Owner(ctx, jti)
	if err != nil || !ok {
		return err
	}
	jti = strings.TrimSpace(jti)
	if err := s.client.Del(ctx, sessionKey(jti)).Err(); err != nil {
		return err
	}
	return s.client.SRem(ctx, userSessionsKey(userID), jti).Err()
}

func (s *redisRefreshTokenStore) RevokeAllForUser(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil
	}
	index := userSessionsKey(userID)
	jtis, err := s.client.SMembers(ctx, index).Result()
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(jtis)+1)
	for _, jti := range jtis {
		keys = append(keys, sessionKey(jti))
	}
	keys = append(keys, index)
	return s.client.Del(ctx, keys...).Err()
}

var errInvalidSession = errors.New("refresh session requires jti and user id")

func sessionTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return defaultRefreshTTL
	}
	return ttl
}
