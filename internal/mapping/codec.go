package mapping

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// sourceIDField is the reserved key holding the source id inside each serialized entry
const sourceIDField = "source_id"

// document is the on-disk shape: destination id -> {source_id, aux fields...}
type document map[string]map[string]any

type codec interface {
	marshal(doc document) ([]byte, error)
	unmarshal(data []byte) (document, error)
	ext() string
}

func codecFor(format string) (codec, error) {
	switch format {
	case "", "json":
		return jsonCodec{}, nil
	case "yaml", "yml":
		return yamlCodec{}, nil
	default:
		return nil, fmt.Errorf("unsupported mapping format %q", format)
	}
}

type jsonCodec struct{}

func (jsonCodec) ext() string { return ".json" }

func (jsonCodec) marshal(doc document) ([]byte, error) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

func (jsonCodec) unmarshal(data []byte) (document, error) {
	doc := document{}
	if len(bytes.TrimSpace(data)) == 0 {
		return doc, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	// Keep ids as written, 1e6 style floats would not round-trip
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	return doc, nil
}

type yamlCodec struct{}

func (yamlCodec) ext() string { return ".yaml" }

func (yamlCodec) marshal(doc document) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (yamlCodec) unmarshal(data []byte) (document, error) {
	doc := document{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}
