package cassandra

import (
	"context"
	"encoding/json"

	"github.com/gocql/gocql"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/samueltorres/r8views/pkg/callers"
)

const (
	selectCallers = `SELECT id, state FROM callers`
	upsertCaller  = `UPDATE callers SET state = ? WHERE id = ?`
)

// RemoteStorage keeps one row per caller holding its JSON encoded state.
type RemoteStorage struct {
	session *gocql.Session
	logger  *logrus.Logger
}

func NewRemoteStorage(logger *logrus.Logger, session *gocql.Session) *RemoteStorage {
	return &RemoteStorage{
		session: session,
		logger:  logger,
	}
}

func (s RemoteStorage) Load(ctx context.Context) (map[string]*callers.Caller, error) {
	iter := s.session.
		Query(selectCallers).
		WithContext(ctx).
		Consistency(gocql.LocalQuorum).
		Iter()

	out := make(map[string]*callers.Caller)
	var id, state string
	for iter.Scan(&id, &state) {
		var c callers.Caller
		if err := json.Unmarshal([]byte(state), &c); err != nil {
			iter.Close()
			return nil, errors.Wrapf(err, "cassandra storage decode failure for caller %s", id)
		}
		out[id] = &c
	}

	if err := iter.Close(); err != nil {
		return nil, errors.Wrap(err, "cassandra storage select failure")
	}

	s.logger.WithField("callers", len(out)).Debug("callers read from cassandra")
	return out, nil
}

func (s RemoteStorage) Save(ctx context.Context, state map[string]*callers.Caller) error {
	if len(state) == 0 {
		return nil
	}

	batch := s.session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	for id, c := range state {
		payload, err := json.Marshal(c)
		if err != nil {
			return errors.Wrapf(err, "cassandra storage encode failure for caller %s", id)
		}
		batch.Query(upsertCaller, string(payload), id)
	}
	batch.SetConsistency(gocql.LocalQuorum)

	if err := s.session.ExecuteBatch(batch); err != nil {
		return errors.Wrap(err, "cassandra storage batch failure")
	}

	return nil
}
