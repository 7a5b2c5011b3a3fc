package keyvault

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"
)

// document is the stored form of the counters: parallel key and value arrays.
type document struct {
	Keys   []string `json:"keys" yaml:"keys" msgpack:"keys"`
	Values []int64  `json:"values" yaml:"values" msgpack:"values"`
}

// Codec encodes the counter document.
type Codec interface {
	Name() string
	Marshal(doc *document) ([]byte, error)
	Unmarshal(data []byte, doc *document) error
}

type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }
func (jsonCodec) Marshal(doc *document) ([]byte, error) {
	return json.MarshalIndent(doc, "", "  ")
}
func (jsonCodec) Unmarshal(data []byte, doc *document) error { return json.Unmarshal(data, doc) }

type yamlCodec struct{}

func (yamlCodec) Name() string                                { return "yaml" }
func (yamlCodec) Marshal(doc *document) ([]byte, error)       { return yaml.Marshal(doc) }
func (yamlCodec) Unmarshal(data []byte, doc *document) error { return yaml.Unmarshal(data, doc) }

type msgpackCodec struct{}

func (msgpackCodec) Name() string                                { return "msgpack" }
func (msgpackCodec) Marshal(doc *document) ([]byte, error)       { return msgpack.Marshal(doc) }
func (msgpackCodec) Unmarshal(data []byte, doc *document) error { return msgpack.Unmarshal(data, doc) }

var (
	JSON    Codec = jsonCodec{}
	YAML    Codec = yamlCodec{}
	MsgPack Codec = msgpackCodec{}
)

// CodecFor returns the named codec, or picks one from the path extension
// when name is empty. Unknown extensions fall back to JSON.
func CodecFor(name, path string) (Codec, error) {
	explicit := name != ""
	if !explicit {
		name = strings.TrimPrefix(filepath.Ext(path), ".")
	}
	switch strings.ToLower(name) {
	case "json":
		return JSON, nil
	case "yaml", "yml":
		return YAML, nil
	case "msgpack", "mp":
		return MsgPack, nil
	}
	if explicit {
		return nil, fmt.Errorf("unknown key vault codec %q", name)
	}
	return JSON, nil
}
