// Package keyvault issues self-assigned primary keys from durable per-type
// counters.
package keyvault

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"rowgraph/internal/config"
	"rowgraph/internal/instrument"
	"rowgraph/internal/metadata"
)

var (
	// ErrCorrupt means the stored counters could not be read. Counters are
	// never restarted in that case; every later call fails too.
	ErrCorrupt = errors.New("key vault corrupt")
	ErrClosed  = errors.New("key vault closed")
)

type Option func(*Vault)

func WithLogger(l *slog.Logger) Option {
	return func(v *Vault) {
		if l != nil {
			v.logger = l
		}
	}
}

// WithInstrumenter emits one event per issued key.
func WithInstrumenter(inst instrument.Instrumenter) Option {
	return func(v *Vault) {
		if inst != nil {
			v.inst = inst
		}
	}
}

// Vault hands out monotonic keys per entity type. It is safe for concurrent
// use; issuance for a type is serialized by a single mutex.
type Vault struct {
	backend Backend
	codec   Codec
	logger  *slog.Logger
	inst    instrument.Instrumenter

	mu       sync.Mutex
	counters map[string]int64
	loaded   bool
	loadErr  error
	dirty    bool
	closed   bool
}

func New(backend Backend, codec Codec, opts ...Option) *Vault {
	v := &Vault{
		backend:  backend,
		codec:    codec,
		logger:   slog.Default(),
		inst:     &instrument.NoopInstrumenter{},
		counters: make(map[string]int64),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Open builds a vault from config: a file on the OS filesystem or an S3
// object, encoded by the configured codec or the one matching the path.
func Open(ctx context.Context, cfg config.KeyVaultConfig, opts ...Option) (*Vault, error) {
	codec, err := CodecFor(cfg.Codec, cfg.Path)
	if err != nil {
		return nil, err
	}
	var backend Backend
	switch cfg.Backend {
	case "", "file":
		backend = NewFileBackend(afero.NewOsFs(), cfg.Path)
	case "s3":
		client, err := NewS3Client(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		backend = NewS3Backend(client, cfg.S3.Bucket, cfg.Path)
	default:
		return nil, fmt.Errorf("unknown key vault backend %q", cfg.Backend)
	}
	return New(backend, codec, opts...), nil
}

// Load reads the stored counters if that has not happened yet. Calling it at
// startup surfaces a corrupt store before any key is issued.
func (v *Vault) Load(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.ensureLoaded(ctx)
}

func (v *Vault) ensureLoaded(ctx context.Context) error {
	if v.loadErr != nil {
		return v.loadErr
	}
	if v.loaded {
		return nil
	}

	data, err := v.backend.Load(ctx)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		v.logger.Info("key vault empty, counters start at 1", "store", v.backend.String())
		v.loaded = true
		return nil
	case err != nil:
		// transient; the next call retries
		return fmt.Errorf("load key vault: %w", err)
	}

	counters, err := v.decode(data)
	if err != nil {
		v.loadErr = fmt.Errorf("%w: %s: %v", ErrCorrupt, v.backend.String(), err)
		v.logger.Error("key vault unreadable", "store", v.backend.String(), "error", err)
		return v.loadErr
	}
	v.counters = counters
	v.loaded = true
	v.logger.Debug("key vault loaded", "store", v.backend.String(), "types", len(counters))
	return nil
}

func (v *Vault) decode(data []byte) (map[string]int64, error) {
	var doc document
	if err := v.codec.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if len(doc.Keys) != len(doc.Values) {
		return nil, fmt.Errorf("%d keys but %d values", len(doc.Keys), len(doc.Values))
	}
	counters := make(map[string]int64, len(doc.Keys))
	for i, k := range doc.Keys {
		if _, dup := counters[k]; dup {
			return nil, fmt.Errorf("duplicate key %q", k)
		}
		if doc.Values[i] < 0 {
			return nil, fmt.Errorf("negative counter for %q", k)
		}
		counters[k] = doc.Values[i]
	}
	return counters, nil
}

// NextKey issues the next key for typeName. Int keys get the counter itself,
// String keys its upper-case hex form, UUID keys a random UUID that does not
// touch any counter.
func (v *Vault) NextKey(ctx context.Context, typeName string, keyType metadata.FieldType) (any, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return nil, ErrClosed
	}

	var key any
	switch keyType {
	case metadata.TypeUUID:
		key = uuid.New()
	case metadata.TypeInt, metadata.TypeString:
		if err := v.ensureLoaded(ctx); err != nil {
			return nil, err
		}
		v.counters[typeName]++
		v.dirty = true
		n := v.counters[typeName]
		if keyType == metadata.TypeString {
			key = strings.ToUpper(strconv.FormatInt(n, 16))
		} else {
			key = n
		}
	default:
		return nil, fmt.Errorf("key vault cannot issue %s keys for %s", keyType, typeName)
	}

	v.inst.EmitEvent("keyvault", "issue", typeName)
	return key, nil
}

// Peek returns the last counter value issued for typeName.
func (v *Vault) Peek(ctx context.Context, typeName string) (int64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.ensureLoaded(ctx); err != nil {
		return 0, err
	}
	return v.counters[typeName], nil
}

// Flush writes the counters if any key was issued since the last flush.
func (v *Vault) Flush(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.flush(ctx)
}

func (v *Vault) flush(ctx context.Context) error {
	if !v.dirty {
		return nil
	}
	doc := &document{
		Keys:   make([]string, 0, len(v.counters)),
		Values: make([]int64, 0, len(v.counters)),
	}
	for k := range v.counters {
		doc.Keys = append(doc.Keys, k)
	}
	sort.Strings(doc.Keys)
	for _, k := range doc.Keys {
		doc.Values = append(doc.Values, v.counters[k])
	}

	data, err := v.codec.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode key vault: %w", err)
	}
	if err := v.backend.Save(ctx, data); err != nil {
		return fmt.Errorf("save key vault: %w", err)
	}
	v.dirty = false
	v.logger.Debug("key vault flushed", "store", v.backend.String(), "types", len(doc.Keys))
	return nil
}

// Close flushes pending counters and rejects further issuance. Closing twice
// is a no-op.
func (v *Vault) Close(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return nil
	}
	if err := v.flush(ctx); err != nil {
		return err
	}
	v.closed = true
	return nil
}
