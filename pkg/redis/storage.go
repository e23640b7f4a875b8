package redis

import (
	"context"
	"encoding/json"

	"github.com/go-redis/redis/v7"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/samueltorres/r8views/pkg/callers"
)

// RemoteStorage keeps one JSON value per caller and a set indexing their ids.
type RemoteStorage struct {
	client *redis.Client
	prefix string
	logger *logrus.Logger
}

func NewRemoteStorage(client *redis.Client, prefix string, logger *logrus.Logger) *RemoteStorage {
	return &RemoteStorage{
		client: client,
		prefix: prefix,
		logger: logger,
	}
}

func (s RemoteStorage) indexKey() string {
	return s.prefix + "callers"
}

func (s RemoteStorage) callerKey(id string) string {
	return s.prefix + "caller:" + id
}

func (s RemoteStorage) Load(ctx context.Context) (map[string]*callers.Caller, error) {
	client := s.client.WithContext(ctx)

	ids, err := client.SMembers(s.indexKey()).Result()
	if err != nil {
		return nil, errors.Wrap(err, "redis storage index failure")
	}

	out := make(map[string]*callers.Caller, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.callerKey(id)
	}

	values, err := client.MGet(keys...).Result()
	if err != nil {
		return nil, errors.Wrap(err, "redis storage get failure")
	}

	for i, v := range values {
		payload, ok := v.(string)
		if !ok {
			s.logger.WithField("caller", ids[i]).Warn("indexed caller has no stored state")
			continue
		}

		var c callers.Caller
		if err := json.Unmarshal([]byte(payload), &c); err != nil {
			return nil, errors.Wrapf(err, "redis storage decode failure for caller %s", ids[i])
		}
		out[ids[i]] = &c
	}

	return out, nil
}

func (s RemoteStorage) Save(ctx context.Context, state map[string]*callers.Caller) error {
	if len(state) == 0 {
		return nil
	}

	pipe := s.client.WithContext(ctx).TxPipeline()
	members := make([]interface{}, 0, len(state))
	for id, c := range state {
		payload, err := json.Marshal(c)
		if err != nil {
			return errors.Wrapf(err, "redis storage encode failure for caller %s", id)
		}
		pipe.Set(s.callerKey(id), payload, 0)
		members = append(members, id)
	}
	pipe.SAdd(s.indexKey(), members...)

	_, err := pipe.Exec()
	if err != nil {
		return errors.Wrap(err, "redis storage pipeline failure")
	}

	return nil
}
