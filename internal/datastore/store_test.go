package datastore

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func testStore() *Store {
	return New(map[string][]Record{
		"posts": {
			{"id": int64(1), "title": "Lorem Ipsum"},
			{"id": int64(2), "title": "Sic Dolor amet"},
		},
		"users": {
			{"id": "abc", "name": "John Doe"},
		},
	})
}

func TestStoreKeysAreSorted(t *testing.T) {
	store := testStore()
	assert.Equal(t, []string{"posts", "users"}, store.Keys())
	_, ok := store.Collection("comments")
	assert.False(t, ok)
	assert.Equal(t, map[string]int{"posts": 2, "users": 1}, store.Counts())
}

func TestCollectionPositionalOperations(t *testing.T) {
	store := testStore()
	posts, ok := store.Collection("posts")
	require.True(t, ok)

	require.NoError(t, posts.InsertAt(0, Record{"id": int64(0)}))
	assert.Equal(t, 3, posts.Len())
	first, err := posts.At(0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), first["id"])

	posts.Append(Record{"id": int64(3)})
	last, ok := posts.Last()
	require.True(t, ok)
	assert.Equal(t, int64(3), last["id"])

	require.NoError(t, posts.ReplaceAt(1, Record{"id": int64(1), "title": "Replaced"}))
	replaced, _ := posts.Find("1")
	assert.Equal(t, "Replaced", replaced["title"])

	removed, err := posts.RemoveAt(0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), removed["id"])
	assert.Equal(t, 3, posts.Len())

	_, err = posts.RemoveAt(10)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
	assert.ErrorIs(t, posts.InsertAt(-1, Record{}), ErrIndexOutOfRange)
	assert.ErrorIs(t, posts.ReplaceAt(5, Record{}), ErrIndexOutOfRange)
	_, err = posts.At(99)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestCollectionIndexOfComparesIDsAsStrings(t *testing.T) {
	store := testStore()
	posts, _ := store.Collection("posts")
	users, _ := store.Collection("users")

	assert.Equal(t, 1, posts.IndexOf("2"))
	assert.Equal(t, 0, posts.IndexOf(1))
	assert.Equal(t, -1, posts.IndexOf(nil))
	assert.Equal(t, 0, users.IndexOf("abc"))
}

func TestRecordsReturnsCopy(t *testing.T) {
	store := testStore()
	posts, _ := store.Collection("posts")
	records := posts.Records()
	records[0] = Record{"id": "other"}
	first, _ := posts.At(0)
	assert.Equal(t, int64(1), first["id"])
}

func TestDecodeJSON(t *testing.T) {
	data, err := Decode([]byte(`{"posts":[{"id":1,"views":2.5,"tags":["a"],"meta":{"n":3}}],"empty":[]}`), FormatJSON)
	require.NoError(t, err)

	require.Len(t, data["posts"], 1)
	post := data["posts"][0]
	assert.Equal(t, int64(1), post["id"])
	assert.Equal(t, 2.5, post["views"])
	assert.Equal(t, []any{"a"}, post["tags"])
	assert.Equal(t, map[string]any{"n": int64(3)}, post["meta"])
	assert.Empty(t, data["empty"])
}

func TestDecodeYAML(t *testing.T) {
	doc := []byte("posts:\n  - id: 1\n    title: Hello\n    published: true\n")
	data, err := Decode(doc, FormatYAML)
	require.NoError(t, err)
	assert.Equal(t, []Record{{"id": int64(1), "title": "Hello", "published": true}}, data["posts"])
}

func TestDecodeMsgpack(t *testing.T) {
	when := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	raw, err := msgpack.Marshal(map[string]any{
		"events": []any{
			map[string]any{"id": 1, "at": when},
		},
	})
	require.NoError(t, err)

	data, err := Decode(raw, FormatMsgpack)
	require.NoError(t, err)
	require.Len(t, data["events"], 1)
	assert.Equal(t, int64(1), data["events"][0]["id"])
	at, ok := data["events"][0]["at"].(time.Time)
	require.True(t, ok)
	assert.True(t, when.Equal(at))
}

func TestDecodeRejectsInvalidDocuments(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"top level list", `[1, 2]`},
		{"collection not a list", `{"posts": {"id": 1}}`},
		{"record not an object", `{"posts": [1]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.doc), FormatJSON)
			assert.ErrorIs(t, err, ErrInvalidDocument)
		})
	}

	_, err := Decode([]byte(`{`), FormatJSON)
	assert.Error(t, err)

	_, err = Decode([]byte(`{}`), Format("xml"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestParseAndDetectFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatAuto, f)

	f, err = ParseFormat("YAML")
	require.NoError(t, err)
	assert.Equal(t, FormatYAML, f)

	_, err = ParseFormat("toml")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	assert.Equal(t, FormatYAML, DetectFormat("db.yml"))
	assert.Equal(t, FormatMsgpack, DetectFormat("db.msgpack"))
	assert.Equal(t, FormatJSON, DetectFormat("db.json"))
	assert.Equal(t, FormatJSON, DetectFormat("db"))
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "db.yaml")
	require.NoError(t, os.WriteFile(path, []byte("users:\n  - id: 1\n    name: Jane\n"), 0o600))

	store, raw, err := Load(path, FormatAuto)
	require.NoError(t, err)
	assert.NotEmpty(t, raw)
	users, ok := store.Collection("users")
	require.True(t, ok)
	assert.Equal(t, 1, users.Len())

	_, _, err = Load(filepath.Join(dir, "missing.json"), FormatAuto)
	assert.Error(t, err)
}

func TestReadStdinFromPipe(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	_, err = w.Write([]byte(`{"posts":[]}`))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	raw, err := readStdin(r)
	require.NoError(t, err)
	assert.Equal(t, `{"posts":[]}`, string(raw))
}
