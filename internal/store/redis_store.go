package store

import (
	"context"
	"encoding/hex"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/wehriam/hiitrack/internal/apierrors"
)

// RedisStore backs the Store contract with Redis Hashes paired with
// same-score sorted sets, so ZRANGEBYLEX yields the byte-lexicographic
// column order a wide-column slice read expects. Each row becomes a
// hash/sorted-set key pair rather than a column-family row.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func relationKey(rowKey []byte) string  { return "relation:" + hex.EncodeToString(rowKey) }
func relationIdxKey(rowKey []byte) string { return relationKey(rowKey) + ":idx" }
func counterKey(rowKey []byte) string   { return "counter:" + hex.EncodeToString(rowKey) }
func counterIdxKey(rowKey []byte) string  { return counterKey(rowKey) + ":idx" }
func userKey(rowKey []byte) string      { return "user:" + hex.EncodeToString(rowKey) }

func familyKey(family Family, rowKey []byte) string {
	if family == FamilyUser {
		return userKey(rowKey)
	}
	return relationKey(rowKey)
}

func wrapErr(err error) error {
	if err == nil || errors.Is(err, redis.Nil) {
		return nil
	}
	return apierrors.TransientStore("redis transport error", err)
}

func (s *RedisStore) Insert(ctx context.Context, family Family, rowKey, colName, value []byte) error {
	key := familyKey(family, rowKey)
	if err := s.rdb.HSet(ctx, key, string(colName), value).Err(); err != nil {
		return wrapErr(err)
	}
	if family == FamilyRelation {
		if err := s.rdb.ZAdd(ctx, relationIdxKey(rowKey), redis.Z{Score: 0, Member: string(colName)}).Err(); err != nil {
			return wrapErr(err)
		}
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, family Family, rowKey, colName []byte) ([]byte, bool, error) {
	key := familyKey(family, rowKey)
	v, err := s.rdb.HGet(ctx, key, string(colName)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, wrapErr(err)
	}
	return v, true, nil
}

func zLexBound(b []byte, openBound string) string {
	if b == nil {
		return openBound
	}
	return "[" + string(b)
}

func (s *RedisStore) GetSlice(ctx context.Context, family Family, rowKey, start, finish []byte, count int) ([]Column, error) {
	if family != FamilyRelation {
		return nil, apierrors.Internal("GetSlice only supports the relation family", nil)
	}
	if count <= 0 || count > MaxSliceCount {
		count = MaxSliceCount
	}
	members, err := s.rdb.ZRangeByLex(ctx, relationIdxKey(rowKey), &redis.ZRangeBy{
		Min:    zLexBound(start, "-"),
		Max:    zLexBound(finish, "+"),
		Offset: 0,
		Count:  int64(count),
	}).Result()
	if err != nil {
		return nil, wrapErr(err)
	}
	if len(members) == 0 {
		return nil, nil
	}
	values, err := s.rdb.HMGet(ctx, relationKey(rowKey), members...).Result()
	if err != nil {
		return nil, wrapErr(err)
	}
	out := make([]Column, 0, len(members))
	for i, m := range members {
		if values[i] == nil {
			continue
		}
		sv, ok := values[i].(string)
		if !ok {
			continue
		}
		out = append(out, Column{Name: []byte(m), Value: []byte(sv)})
	}
	sortColumns(out)
	return out, nil
}

func (s *RedisStore) Add(ctx context.Context, rowKey, colName []byte, delta int64) error {
	if err := s.rdb.HIncrBy(ctx, counterKey(rowKey), string(colName), delta).Err(); err != nil {
		return wrapErr(err)
	}
	if err := s.rdb.ZAdd(ctx, counterIdxKey(rowKey), redis.Z{Score: 0, Member: string(colName)}).Err(); err != nil {
		return wrapErr(err)
	}
	return nil
}

func (s *RedisStore) GetCounter(ctx context.Context, rowKey, colName []byte) (int64, bool, error) {
	v, err := s.rdb.HGet(ctx, counterKey(rowKey), string(colName)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, wrapErr(err)
	}
	return v, true, nil
}

func (s *RedisStore) GetCounterSlice(ctx context.Context, rowKey, start, finish []byte, count int) ([]CounterColumn, error) {
	if count <= 0 || count > MaxSliceCount {
		count = MaxSliceCount
	}
	members, err := s.rdb.ZRangeByLex(ctx, counterIdxKey(rowKey), &redis.ZRangeBy{
		Min:    zLexBound(start, "-"),
		Max:    zLexBound(finish, "+"),
		Offset: 0,
		Count:  int64(count),
	}).Result()
	if err != nil {
		return nil, wrapErr(err)
	}
	if len(members) == 0 {
		return nil, nil
	}
	values, err := s.rdb.HMGet(ctx, counterKey(rowKey), members...).Result()
	if err != nil {
		return nil, wrapErr(err)
	}
	out := make([]CounterColumn, 0, len(members))
	for i, m := range members {
		if values[i] == nil {
			continue
		}
		sv, ok := values[i].(string)
		if !ok {
			continue
		}
		n, perr := parseInt64(sv)
		if perr != nil {
			continue
		}
		out = append(out, CounterColumn{Name: []byte(m), Value: n})
	}
	sortCounterColumns(out)
	return out, nil
}

func (s *RedisStore) Remove(ctx context.Context, family Family, rowKey, colName []byte) error {
	key := familyKey(family, rowKey)
	if err := s.rdb.HDel(ctx, key, string(colName)).Err(); err != nil {
		return wrapErr(err)
	}
	if family == FamilyRelation {
		if err := s.rdb.ZRem(ctx, relationIdxKey(rowKey), string(colName)).Err(); err != nil {
			return wrapErr(err)
		}
	}
	return nil
}

func (s *RedisStore) RemoveCounter(ctx context.Context, rowKey, colName []byte) error {
	if err := s.rdb.HDel(ctx, counterKey(rowKey), string(colName)).Err(); err != nil {
		return wrapErr(err)
	}
	return wrapErr(s.rdb.ZRem(ctx, counterIdxKey(rowKey), string(colName)).Err())
}

// RemoveRowsWithPrefix deletes every relation and counter row (plus their
// ordering sorted sets) whose row-key begins with prefix, as a scan over
// "relation:{hex(prefix)}*" and "counter:{hex(prefix)}*". Bucket-scoped
// row-keys begin with the bucket-id, except unique-marker rows, which begin
// with "u"·bucket-id, so a bucket delete is two calls, one per prefix.
func (s *RedisStore) RemoveRowsWithPrefix(ctx context.Context, prefix []byte) error {
	hexPrefix := hex.EncodeToString(prefix)
	patterns := []string{"relation:" + hexPrefix + "*", "counter:" + hexPrefix + "*"}
	for _, pattern := range patterns {
		iter := s.rdb.Scan(ctx, 0, pattern, 200).Iterator()
		var keys []string
		for iter.Next(ctx) {
			keys = append(keys, iter.Val())
		}
		if err := iter.Err(); err != nil {
			return wrapErr(err)
		}
		if len(keys) == 0 {
			continue
		}
		if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
			return wrapErr(err)
		}
	}
	return nil
}

func parseInt64(s string) (int64, error) {
	var n int64
	neg := false
	if len(s) > 0 && s[0] == '-' {
		neg = true
		s = s[1:]
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, errNotANumber
		}
		n = n*10 + int64(c-'0')
	}
	if neg {
		n = -n
	}
	return n, nil
}

var errNotANumber = errors.New("not a number")
