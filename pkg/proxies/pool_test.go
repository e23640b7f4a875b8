package proxies

import (
	"encoding/json"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	testCases := []struct {
		desc  string
		token string
		want  Proxy
		ok    bool
	}{
		{desc: "valid", token: "1.2.3.4:80", want: Proxy{Host: "1.2.3.4", Port: 80}, ok: true},
		{desc: "hostname", token: "proxy.local:3128", want: Proxy{Host: "proxy.local", Port: 3128}, ok: true},
		{desc: "max port", token: "1.2.3.4:65535", want: Proxy{Host: "1.2.3.4", Port: 65535}, ok: true},
		{desc: "port zero", token: "1.2.3.4:0"},
		{desc: "port out of range", token: "5.6.7.8:99999"},
		{desc: "signed port", token: "1.2.3.4:+80"},
		{desc: "missing port", token: "1.2.3.4:"},
		{desc: "missing host", token: ":80"},
		{desc: "no colon", token: "bad"},
		{desc: "two colons", token: "user:pass:80"},
		{desc: "empty", token: ""},
	}
	for _, tC := range testCases {
		t.Run(tC.desc, func(t *testing.T) {
			got, ok := Parse(tC.token)

			assert.Equal(t, tC.ok, ok)
			assert.Equal(t, tC.want, got)
		})
	}
}

func TestExtract(t *testing.T) {
	testCases := []struct {
		desc string
		text string
		want []string
	}{
		{
			desc: "drops malformed and out of range tokens",
			text: "1.2.3.4:80 bad 5.6.7.8:99999",
			want: []string{"1.2.3.4:80"},
		},
		{
			desc: "splits on any whitespace",
			text: "156.228.81.242:3129\n156.228.104.58:3129\t10.0.0.1:8080",
			want: []string{"156.228.81.242:3129", "156.228.104.58:3129", "10.0.0.1:8080"},
		},
		{
			desc: "keeps duplicates in order",
			text: "1.1.1.1:1 1.1.1.1:1",
			want: []string{"1.1.1.1:1", "1.1.1.1:1"},
		},
		{
			desc: "nothing valid",
			text: "hello world",
			want: []string{},
		},
	}
	for _, tC := range testCases {
		t.Run(tC.desc, func(t *testing.T) {
			assert.Equal(t, tC.want, Extract(tC.text))
		})
	}
}

func TestPool_AddIsIdempotent(t *testing.T) {
	pool := NewPool()

	assert.Equal(t, 1, pool.Add("1.2.3.4:80"))
	assert.Equal(t, 0, pool.Add("1.2.3.4:80"))
	assert.Equal(t, 1, pool.Add("1.2.3.4:80 bad 5.6.7.8:99999 9.9.9.9:9"))
	assert.Equal(t, 2, pool.Len())

	assert.Equal(t, []Proxy{{Host: "1.2.3.4", Port: 80}, {Host: "9.9.9.9", Port: 9}}, pool.List())
}

func TestPool_Clear(t *testing.T) {
	pool := NewPool("1.2.3.4:80", "5.6.7.8:8080")
	pool.Clear()

	assert.Equal(t, 0, pool.Len())
	assert.Equal(t, 1, pool.Add("1.2.3.4:80"))
}

func TestPool_SelectOne(t *testing.T) {
	_, ok := NewPool().SelectOne(rand.New(rand.NewSource(1)))
	assert.False(t, ok)

	pool := NewPool("1.1.1.1:1", "2.2.2.2:2", "3.3.3.3:3")
	rnd := rand.New(rand.NewSource(42))
	seen := make(map[string]int)
	for i := 0; i < 300; i++ {
		p, ok := pool.SelectOne(rnd)
		require.True(t, ok)
		seen[p.String()]++
	}

	assert.Len(t, seen, 3)
	for proxy, n := range seen {
		assert.Greater(t, n, 50, proxy)
	}
}

func TestPool_CloneIsIndependent(t *testing.T) {
	pool := NewPool("1.1.1.1:1")
	clone := pool.Clone()
	pool.Add("2.2.2.2:2")

	assert.Equal(t, 1, clone.Len())
	assert.Equal(t, 0, clone.Add("1.1.1.1:1"))
}

func TestPool_JSON(t *testing.T) {
	pool := NewPool("1.1.1.1:1", "2.2.2.2:2")

	data, err := json.Marshal(pool)
	require.NoError(t, err)
	assert.JSONEq(t, `["1.1.1.1:1","2.2.2.2:2"]`, string(data))

	var restored Pool
	require.NoError(t, json.Unmarshal(data, &restored))
	assert.Equal(t, pool.List(), restored.List())
	assert.Equal(t, 0, restored.Add("2.2.2.2:2"))
}
