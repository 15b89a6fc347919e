package versioned

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runStoreSuite checks the behaviour every Store implementation shares.
func runStoreSuite(t *testing.T, open func(t *testing.T) Store) {
	t.Run("MissingKeyIsAbsent", func(t *testing.T) {
		s := open(t)
		b, ok, err := s.Get("never")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Nil(t, b)

		ts, ok, err := s.Timestamp("never")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Zero(t, ts)
	})

	t.Run("SetThenGet", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Set("home", []byte("<h1>hi</h1>")))
		b, ok, err := s.Get("home")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "<h1>hi</h1>", string(b))

		ts, ok, err := s.Timestamp("home")
		require.NoError(t, err)
		require.True(t, ok)
		assert.InDelta(t, time.Now().Unix(), ts, 5)
	})

	t.Run("EmptyContentIsPresent", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Set("blank", nil))
		b, ok, err := s.Get("blank")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Empty(t, b)
	})

	t.Run("OverwriteReplacesContent", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Set("home", []byte("one")))
		require.NoError(t, s.Set("home", []byte("two")))
		b, _, err := s.Get("home")
		require.NoError(t, err)
		assert.Equal(t, "two", string(b))
	})

	t.Run("TimestampStrictlyIncreases", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Set("news", []byte("a")))
		first, _, err := s.Timestamp("news")
		require.NoError(t, err)
		require.NoError(t, s.Set("news", []byte("b")))
		second, _, err := s.Timestamp("news")
		require.NoError(t, err)
		assert.Greater(t, second, first)
	})

	t.Run("DeleteIsIdempotent", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Set("gone", []byte("x")))
		require.NoError(t, s.Delete("gone"))
		_, ok, err := s.Get("gone")
		require.NoError(t, err)
		assert.False(t, ok)
		require.NoError(t, s.Delete("gone"))
		require.NoError(t, s.Delete("never-existed"))
	})

	t.Run("KeysAndSnapshot", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Set("b", []byte("2")))
		require.NoError(t, s.Set("a", []byte("1")))
		keys, err := s.Keys()
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, keys)

		snap, err := s.Snapshot()
		require.NoError(t, err)
		assert.Equal(t, map[string][]byte{"a": []byte("1"), "b": []byte("2")}, snap)
	})

	t.Run("EmptyStore", func(t *testing.T) {
		s := open(t)
		keys, err := s.Keys()
		require.NoError(t, err)
		assert.Empty(t, keys)
		snap, err := s.Snapshot()
		require.NoError(t, err)
		assert.Empty(t, snap)
	})

	t.Run("InvalidKeys", func(t *testing.T) {
		s := open(t)
		for _, key := range []string{"", "../etc", "a/b", `a\b`, ".hidden"} {
			assert.ErrorIs(t, s.Set(key, []byte("x")), ErrInvalidKey, "key %q", key)
			_, _, err := s.Get(key)
			assert.ErrorIs(t, err, ErrInvalidKey, "key %q", key)
		}
	})

	t.Run("ConcurrentWritersAndReaders", func(t *testing.T) {
		s := open(t)
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				for j := 0; j < 10; j++ {
					_ = s.Set("shared", []byte("abcdefgh"))
				}
			}()
			go func() {
				defer wg.Done()
				for j := 0; j < 10; j++ {
					b, ok, err := s.Get("shared")
					if err == nil && ok {
						assert.Equal(t, "abcdefgh", string(b))
					}
				}
			}()
		}
		wg.Wait()
	})
}

func TestMemory(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store { return NewMemory() })
}

func TestMemory_SameSecondWritesStillAdvance(t *testing.T) {
	m := NewMemory()
	fixed := time.Unix(1_700_000_000, 0)
	m.now = func() time.Time { return fixed }

	require.NoError(t, m.Set("k", []byte("1")))
	require.NoError(t, m.Set("k", []byte("2")))
	ts, _, err := m.Timestamp("k")
	require.NoError(t, err)
	assert.Equal(t, fixed.Unix()+1, ts)
}

func TestMemory_GetReturnsCopy(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Set("k", []byte("abc")))
	b, _, _ := m.Get("k")
	b[0] = 'z'
	again, _, _ := m.Get("k")
	assert.Equal(t, "abc", string(again))
}

func TestDir(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store {
		d, err := OpenDir(filepath.Join(t.TempDir(), "templates"))
		require.NoError(t, err)
		return d
	})
}

func TestDir_LayoutAndMtime(t *testing.T) {
	path := t.TempDir()
	d, err := OpenDir(path)
	require.NoError(t, err)
	require.NoError(t, d.Set("lobby", []byte("welcome")))

	b, err := os.ReadFile(filepath.Join(path, "lobby.html"))
	require.NoError(t, err)
	assert.Equal(t, "welcome", string(b))

	info, err := os.Stat(filepath.Join(path, "lobby.html"))
	require.NoError(t, err)
	ts, _, err := d.Timestamp("lobby")
	require.NoError(t, err)
	assert.Equal(t, info.ModTime().Unix(), ts)
}

func TestDir_SurvivesReopen(t *testing.T) {
	path := t.TempDir()
	d, err := OpenDir(path)
	require.NoError(t, err)
	require.NoError(t, d.Set("screen-1", []byte("home")))
	want, _, _ := d.Timestamp("screen-1")

	reopened, err := OpenDir(path)
	require.NoError(t, err)
	b, ok, err := reopened.Get("screen-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "home", string(b))
	got, _, _ := reopened.Timestamp("screen-1")
	assert.Equal(t, want, got)
}

func TestDir_IgnoresForeignFiles(t *testing.T) {
	path := t.TempDir()
	d, err := OpenDir(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(path, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(path, ".half.123.tmp"), []byte("x"), 0o644))
	require.NoError(t, d.Set("real", []byte("y")))

	keys, err := d.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"real"}, keys)
}

func TestDir_ReadFailureIsNotAbsence(t *testing.T) {
	path := t.TempDir()
	d, err := OpenDir(path)
	require.NoError(t, err)
	// A directory where the file should be makes reads fail.
	require.NoError(t, os.Mkdir(filepath.Join(path, "broken.html"), 0o755))

	_, ok, err := d.Get("broken")
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestDir_SameSecondWritesStillAdvance(t *testing.T) {
	d, err := OpenDir(t.TempDir())
	require.NoError(t, err)
	fixed := time.Unix(1_700_000_000, 0)
	d.now = func() time.Time { return fixed }

	require.NoError(t, d.Set("k", []byte("1")))
	require.NoError(t, d.Set("k", []byte("2")))
	require.NoError(t, d.Set("k", []byte("3")))
	ts, _, err := d.Timestamp("k")
	require.NoError(t, err)
	assert.Equal(t, fixed.Unix()+2, ts)
}

func TestRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := DialRedis(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	runStoreSuite(t, func(t *testing.T) Store {
		return NewRedisWithClient(context.Background(), client, "multidisplay-test:"+uuid.NewString())
	})
}

func TestRedis_Layout(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := DialRedis(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	r := NewRedisWithClient(context.Background(), client, "sig:templates")
	fixed := time.Unix(1_700_000_000, 0)
	r.now = func() time.Time { return fixed }
	require.NoError(t, r.Set("home", []byte("<h1>hi</h1>")))
	require.NoError(t, r.Set("home", []byte("<h1>hello</h1>")))

	assert.Equal(t, "<h1>hello</h1>", mr.HGet("sig:templates:home", "content"))
	assert.Equal(t, "1700000001", mr.HGet("sig:templates:home", "mtime"))
	members, err := mr.SMembers("sig:templates:__keys")
	require.NoError(t, err)
	assert.Equal(t, []string{"home"}, members)

	// A key indexed without its hash (for example after an expiry) is skipped.
	_, err = mr.SAdd("sig:templates:__keys", "ghost")
	require.NoError(t, err)
	snap, err := r.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{"home": []byte("<h1>hello</h1>")}, snap)

	require.NoError(t, r.Delete("home"))
	assert.False(t, mr.Exists("sig:templates:home"))
}

func TestRedis_SharedClientPrefixesIsolate(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := DialRedis(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	templates := NewRedisWithClient(context.Background(), client, "app:templates")
	assignments := NewRedisWithClient(context.Background(), client, "app:client_info")
	require.NoError(t, templates.Set("lobby", []byte("body")))

	_, ok, err := assignments.Get("lobby")
	require.NoError(t, err)
	assert.False(t, ok)
	keys, err := assignments.Keys()
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestDialRedis_Errors(t *testing.T) {
	_, err := DialRedis(context.Background(), "not a url")
	assert.Error(t, err)

	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	_, err = DialRedis(context.Background(), "redis://"+addr)
	assert.Error(t, err)
}

// TestRedis_Live runs the suite against a real server when REDIS_URL is set.
func TestRedis_Live(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	client, err := DialRedis(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	runStoreSuite(t, func(t *testing.T) Store {
		r := NewRedisWithClient(context.Background(), client, "multidisplay-test:"+uuid.NewString())
		t.Cleanup(func() {
			keys, _ := r.Keys()
			for _, k := range keys {
				_ = r.Delete(k)
			}
		})
		return r
	})
}
