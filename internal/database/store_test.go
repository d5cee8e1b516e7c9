package database

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Geergon/tg-media-downloader/internal/config"
)

type storeFactory func(t *testing.T) Store

func backends(t *testing.T) map[string]storeFactory {
	b := map[string]storeFactory{
		"memory": func(t *testing.T) Store { return NewMemory() },
		"json": func(t *testing.T) Store {
			s, err := OpenJSON(filepath.Join(t.TempDir(), "users.json"), zap.NewNop())
			require.NoError(t, err)
			return s
		},
		"sqlite": func(t *testing.T) Store {
			s, err := OpenSQLite(filepath.Join(t.TempDir(), "users.db"))
			require.NoError(t, err)
			return s
		},
	}
	if addr := os.Getenv("TEST_REDIS_ADDR"); addr != "" {
		b["redis"] = func(t *testing.T) Store {
			s, err := OpenRedis(context.Background(), addr)
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.rdb.FlushDB(context.Background()).Err() })
			return s
		}
	}
	return b
}

func TestStore_Contract(t *testing.T) {
	ctx := context.Background()

	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			t.Cleanup(func() { _ = s.Close() })

			u, err := s.GetOrCreate(ctx, Profile{ID: 7, Name: "Oksana", Language: "xx"})
			require.NoError(t, err)
			assert.Equal(t, "Oksana", u.Name)
			assert.Equal(t, "uk", u.Language)
			assert.Equal(t, FormatMP4, u.Format)
			assert.Equal(t, SubscriptionFree, u.Subscription)
			assert.EqualValues(t, 0, u.Downloads)
			assert.False(t, u.Joined.IsZero())

			// ім'я не змінюється після першого контакту
			again, err := s.GetOrCreate(ctx, Profile{ID: 7, Name: "Other", Language: "en"})
			require.NoError(t, err)
			assert.Equal(t, "Oksana", again.Name)
			assert.Equal(t, "uk", again.Language)

			u.Language = "de"
			u.Format = FormatWebM
			u.VideoPlusAudio = false
			u.IncludeDescription = false
			u.Downloads = 100
			require.NoError(t, s.Save(ctx, u))

			got, err := s.GetOrCreate(ctx, Profile{ID: 7})
			require.NoError(t, err)
			assert.Equal(t, "de", got.Language)
			assert.Equal(t, FormatWebM, got.Format)
			assert.False(t, got.VideoPlusAudio)
			assert.False(t, got.IncludeDescription)
			assert.EqualValues(t, 0, got.Downloads, "Save не чіпає лічильник")

			n, err := s.IncrementDownloads(ctx, 7)
			require.NoError(t, err)
			assert.EqualValues(t, 1, n)

			_, err = s.IncrementDownloads(ctx, 999)
			assert.ErrorIs(t, err, ErrNotFound)
			assert.ErrorIs(t, s.Save(ctx, &User{ID: 999, Language: "en"}), ErrNotFound)
		})
	}
}

func TestStore_ConcurrentIncrement(t *testing.T) {
	ctx := context.Background()

	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			t.Cleanup(func() { _ = s.Close() })

			_, err := s.GetOrCreate(ctx, Profile{ID: 1, Name: "A"})
			require.NoError(t, err)

			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := s.IncrementDownloads(ctx, 1)
					assert.NoError(t, err)
				}()
			}
			wg.Wait()

			u, err := s.GetOrCreate(ctx, Profile{ID: 1})
			require.NoError(t, err)
			assert.EqualValues(t, 20, u.Downloads)
		})
	}
}

func TestJSON_LegacyMigration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	legacy := `{
    "42": {
        "name": "Taras",
        "subscription": "free",
        "videos_downloaded": 5,
        "joined": "2024-03-01 10:15",
        "language": "klingon",
        "format": "avi",
        "audio_only": true
    },
    "43": {
        "name": "Ira",
        "subscription": "free",
        "videos_downloaded": 1,
        "joined": "2024-03-02 11:00",
        "language": "fr",
        "format": "webm",
        "audio_only": false,
        "include_description": false,
        "video_plus_audio": false
    },
    "bogus": {"name": "x"}
}`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o644))

	s, err := OpenJSON(path, zap.NewNop())
	require.NoError(t, err)
	ctx := context.Background()

	taras, err := s.GetOrCreate(ctx, Profile{ID: 42})
	require.NoError(t, err)
	assert.Equal(t, "uk", taras.Language)
	assert.Equal(t, FormatMP3, taras.Format)
	assert.EqualValues(t, 5, taras.Downloads)
	assert.True(t, taras.VideoPlusAudio)
	assert.False(t, taras.DeliverCompanion())
	assert.Equal(t, "2024-03-01 10:15", taras.Joined.Format(JoinedLayout))

	ira, err := s.GetOrCreate(ctx, Profile{ID: 43})
	require.NoError(t, err)
	assert.Equal(t, "fr", ira.Language)
	assert.Equal(t, FormatWebM, ira.Format)
	assert.False(t, ira.IncludeDescription)

	// після міграції audio_only більше не пишеться
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "audio_only")
	assert.Contains(t, string(data), `"videos_downloaded": 5`)

	reopened, err := OpenJSON(path, zap.NewNop())
	require.NoError(t, err)
	again, err := reopened.GetOrCreate(ctx, Profile{ID: 42})
	require.NoError(t, err)
	assert.Equal(t, FormatMP3, again.Format)
}

func TestJSON_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := OpenJSON(path, zap.NewNop())
	require.Error(t, err)
}

func TestParseFormat(t *testing.T) {
	assert.Equal(t, FormatMP3, ParseFormat("mp3"))
	assert.Equal(t, FormatWebM, ParseFormat("webm"))
	assert.Equal(t, FormatMP4, ParseFormat(""))
	assert.Equal(t, FormatMP4, ParseFormat("mkv"))
	assert.False(t, FormatMP3.IsVideo())
	assert.True(t, FormatWebM.IsVideo())
}

func TestOpen_UnknownBackend(t *testing.T) {
	_, err := Open(context.Background(), config.StoreConfig{Backend: "mongo"}, zap.NewNop())
	require.Error(t, err)
}
