package keyvault

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rowgraph/internal/instrument"
	"rowgraph/internal/metadata"
)

func newFileVault(fs afero.Fs, path string, opts ...Option) *Vault {
	codec, _ := CodecFor("", path)
	return New(NewFileBackend(fs, path), codec, opts...)
}

func TestNextKey_IncreasesFromOne(t *testing.T) {
	ctx := context.Background()
	v := newFileVault(afero.NewMemMapFs(), "keys.json")

	var last int64
	for i := 1; i <= 5; i++ {
		key, err := v.NextKey(ctx, "Invoice", metadata.TypeInt)
		require.NoError(t, err)
		n := key.(int64)
		assert.Greater(t, n, last)
		last = n
	}
	assert.Equal(t, int64(5), last)

	// counters are per type
	key, err := v.NextKey(ctx, "Line", metadata.TypeInt)
	require.NoError(t, err)
	assert.Equal(t, int64(1), key)
}

func TestNextKey_StringAndUUID(t *testing.T) {
	ctx := context.Background()
	v := newFileVault(afero.NewMemMapFs(), "keys.json")
	v.counters["Supplier"] = 254
	v.loaded = true

	key, err := v.NextKey(ctx, "Supplier", metadata.TypeString)
	require.NoError(t, err)
	assert.Equal(t, "FF", key)

	key, err = v.NextKey(ctx, "Token", metadata.TypeUUID)
	require.NoError(t, err)
	assert.IsType(t, uuid.UUID{}, key)
	n, err := v.Peek(ctx, "Token")
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = v.NextKey(ctx, "Bad", metadata.TypeBool)
	assert.Error(t, err)
}

func TestVault_ContinuesAfterRestart(t *testing.T) {
	for _, path := range []string{"data/keys.json", "data/keys.yaml", "data/keys.msgpack"} {
		t.Run(path, func(t *testing.T) {
			ctx := context.Background()
			fs := afero.NewMemMapFs()

			v := newFileVault(fs, path)
			for range 3 {
				_, err := v.NextKey(ctx, "Invoice", metadata.TypeInt)
				require.NoError(t, err)
			}
			require.NoError(t, v.Close(ctx))

			_, err := v.NextKey(ctx, "Invoice", metadata.TypeInt)
			assert.ErrorIs(t, err, ErrClosed)

			restarted := newFileVault(fs, path)
			key, err := restarted.NextKey(ctx, "Invoice", metadata.TypeInt)
			require.NoError(t, err)
			assert.Equal(t, int64(4), key)
		})
	}
}

type countingBackend struct {
	Backend
	saves int
}

func (b *countingBackend) Save(ctx context.Context, data []byte) error {
	b.saves++
	return b.Backend.Save(ctx, data)
}

func TestFlush_WritesOnlyWhenDirty(t *testing.T) {
	ctx := context.Background()
	backend := &countingBackend{Backend: NewFileBackend(afero.NewMemMapFs(), "keys.json")}
	v := New(backend, JSON)

	require.NoError(t, v.Flush(ctx))
	assert.Equal(t, 0, backend.saves)

	_, err := v.NextKey(ctx, "Invoice", metadata.TypeInt)
	require.NoError(t, err)
	require.NoError(t, v.Flush(ctx))
	require.NoError(t, v.Flush(ctx))
	require.NoError(t, v.Close(ctx))
	require.NoError(t, v.Close(ctx))
	assert.Equal(t, 1, backend.saves)
}

func TestVault_CorruptStoreIsFatal(t *testing.T) {
	ctx := context.Background()
	cases := map[string]string{
		"garbage":    "{not json",
		"mismatched": `{"keys":["Invoice","Line"],"values":[3]}`,
		"duplicate":  `{"keys":["Invoice","Invoice"],"values":[3,4]}`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			require.NoError(t, afero.WriteFile(fs, "keys.json", []byte(content), 0o644))
			v := newFileVault(fs, "keys.json")

			assert.ErrorIs(t, v.Load(ctx), ErrCorrupt)
			_, err := v.NextKey(ctx, "Invoice", metadata.TypeInt)
			assert.ErrorIs(t, err, ErrCorrupt)

			// fixing the file does not revive a vault that saw it corrupt
			require.NoError(t, afero.WriteFile(fs, "keys.json", []byte(`{"keys":[],"values":[]}`), 0o644))
			_, err = v.NextKey(ctx, "Invoice", metadata.TypeInt)
			assert.ErrorIs(t, err, ErrCorrupt)
		})
	}
}

func TestNextKey_ConcurrentIssuanceIsUnique(t *testing.T) {
	ctx := context.Background()
	v := newFileVault(afero.NewMemMapFs(), "keys.json")

	const workers, perWorker = 8, 50
	keys := make(chan int64, workers*perWorker)
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perWorker {
				key, err := v.NextKey(ctx, "Invoice", metadata.TypeInt)
				if err != nil {
					t.Error(err)
					return
				}
				keys <- key.(int64)
			}
		}()
	}
	wg.Wait()
	close(keys)

	seen := make(map[int64]bool)
	for k := range keys {
		assert.False(t, seen[k], "duplicate key %d", k)
		seen[k] = true
	}
	assert.Len(t, seen, workers*perWorker)
}

type recorder struct {
	instrument.NoopInstrumenter
	events []string
}

func (r *recorder) EmitEvent(component, action, entity string) {
	r.events = append(r.events, component+"."+action+":"+entity)
}

func TestNextKey_EmitsEvent(t *testing.T) {
	rec := &recorder{}
	v := newFileVault(afero.NewMemMapFs(), "keys.json", WithInstrumenter(rec))

	for range 2 {
		_, err := v.NextKey(context.Background(), "Invoice", metadata.TypeInt)
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"keyvault.issue:Invoice", "keyvault.issue:Invoice"}, rec.events)
}

type fakeS3 struct {
	objects map[string][]byte
	getErr  error
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	data, ok := f.objects[*in.Bucket+"/"+*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[*in.Bucket+"/"+*in.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func TestS3Backend(t *testing.T) {
	ctx := context.Background()
	client := &fakeS3{objects: make(map[string][]byte)}

	v := New(NewS3Backend(client, "vault", "keys.yaml"), YAML)
	key, err := v.NextKey(ctx, "Invoice", metadata.TypeInt)
	require.NoError(t, err)
	assert.Equal(t, int64(1), key)
	require.NoError(t, v.Close(ctx))
	assert.Contains(t, string(client.objects["vault/keys.yaml"]), "Invoice")

	restarted := New(NewS3Backend(client, "vault", "keys.yaml"), YAML)
	key, err = restarted.NextKey(ctx, "Invoice", metadata.TypeInt)
	require.NoError(t, err)
	assert.Equal(t, int64(2), key)

	// a failing read is not mistaken for an empty vault
	client.getErr = errors.New("connection reset")
	broken := New(NewS3Backend(client, "vault", "keys.yaml"), YAML)
	_, err = broken.NextKey(ctx, "Invoice", metadata.TypeInt)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCorrupt)
}

func TestCodecFor(t *testing.T) {
	for path, want := range map[string]Codec{
		"keys.json": JSON, "keys.yml": YAML, "keys.yaml": YAML, "keys.msgpack": MsgPack, "keys": JSON,
	} {
		c, err := CodecFor("", path)
		require.NoError(t, err)
		assert.Equal(t, want.Name(), c.Name(), path)
	}
	c, err := CodecFor("yaml", "keys.json")
	require.NoError(t, err)
	assert.Equal(t, "yaml", c.Name())

	_, err = CodecFor("toml", "")
	assert.Error(t, err)
}
