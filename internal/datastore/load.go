package datastore

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/eurisko-info-lab/json-graphql-server/internal/jsonvalue"

	jsoniter "github.com/json-iterator/go"
	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

// StdinSource is the data file path that reads the document from stdin.
const StdinSource = "@-"

// Format names a data document encoding.
type Format string

const (
	FormatAuto    Format = "auto"
	FormatJSON    Format = "json"
	FormatYAML    Format = "yaml"
	FormatMsgpack Format = "msgpack"
)

var (
	// ErrUnsupportedFormat is returned for unknown encodings.
	ErrUnsupportedFormat = errors.New("unsupported data format")
	// ErrInvalidDocument is returned when a document is not a map of
	// collections of records.
	ErrInvalidDocument = errors.New("invalid data document")
	// ErrInteractiveStdin is returned when stdin is a terminal.
	ErrInteractiveStdin = errors.New("refusing to read data from an interactive terminal")
)

var jsonAPI = jsoniter.Config{
	UseNumber:              true,
	EscapeHTML:             false,
	ValidateJsonRawMessage: true,
}.Froze()

// ParseFormat validates a configured format name.
func ParseFormat(name string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(name))); f {
	case "", FormatAuto:
		return FormatAuto, nil
	case FormatJSON, FormatYAML, FormatMsgpack:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, name)
	}
}

// DetectFormat picks a format from a file extension, defaulting to JSON.
func DetectFormat(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".msgpack", ".mpk":
		return FormatMsgpack
	default:
		return FormatJSON
	}
}

// ReadSource reads the raw document at path. StdinSource reads stdin, which
// must not be an interactive terminal.
func ReadSource(path string) ([]byte, error) {
	if path == StdinSource {
		return readStdin(os.Stdin)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read data file: %w", err)
	}
	return raw, nil
}

func readStdin(f *os.File) ([]byte, error) {
	if term.IsTerminal(int(f.Fd())) {
		return nil, ErrInteractiveStdin
	}
	raw, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read data from stdin: %w", err)
	}
	return raw, nil
}

// Decode parses raw into collections of normalized records.
func Decode(raw []byte, format Format) (map[string][]Record, error) {
	var doc any
	switch format {
	case FormatJSON, FormatAuto:
		if err := jsonAPI.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("decode json data: %w", err)
		}
	case FormatYAML:
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("decode yaml data: %w", err)
		}
	case FormatMsgpack:
		if err := msgpack.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("decode msgpack data: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	return collectionsFromDocument(jsonvalue.Normalize(doc))
}

func collectionsFromDocument(doc any) (map[string][]Record, error) {
	top, ok := doc.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: top level must be an object of collections, got %s", ErrInvalidDocument, jsonvalue.Classify(doc))
	}

	data := make(map[string][]Record, len(top))
	for key, value := range top {
		items, ok := value.([]any)
		if !ok {
			return nil, fmt.Errorf("%w: collection %q must be a list, got %s", ErrInvalidDocument, key, jsonvalue.Classify(value))
		}
		records := make([]Record, 0, len(items))
		for i, item := range items {
			record, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: collection %q record %d must be an object, got %s", ErrInvalidDocument, key, i, jsonvalue.Classify(item))
			}
			records = append(records, record)
		}
		data[key] = records
	}
	return data, nil
}

// Load reads and decodes the document at path. FormatAuto picks the format
// from the file extension. The raw bytes are returned for fingerprinting.
func Load(path string, format Format) (*Store, []byte, error) {
	raw, err := ReadSource(path)
	if err != nil {
		return nil, nil, err
	}
	if format == FormatAuto || format == "" {
		format = DetectFormat(path)
	}
	data, err := Decode(raw, format)
	if err != nil {
		return nil, raw, err
	}
	return New(data), raw, nil
}
