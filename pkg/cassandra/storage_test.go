package cassandra

import (
	"context"
	"io/ioutil"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/samueltorres/r8views/pkg/callers"
)

func TestQueriesUseSessionKeyspace(t *testing.T) {
	testCases := []struct {
		desc  string
		query string
	}{
		{desc: "select", query: selectCallers},
		{desc: "upsert", query: upsertCaller},
	}
	for _, tC := range testCases {
		t.Run(tC.desc, func(t *testing.T) {
			assert.Contains(t, tC.query, " callers")
			assert.NotContains(t, tC.query, ".callers")
		})
	}
}

func TestRemoteStorage_SaveEmptyStateSkipsBatch(t *testing.T) {
	logger := logrus.New()
	logger.Out = ioutil.Discard
	s := NewRemoteStorage(logger, nil)

	err := s.Save(context.Background(), map[string]*callers.Caller{})

	assert.NoError(t, err)
}
