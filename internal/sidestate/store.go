// Package sidestate reads and writes the files kept next to the sing-box
// config: the Reality keys (cert/keys.json) and the operator's display labels
// (node_names.json). A missing file is empty state; an unreadable one is
// reported as corrupt and left alone.
package sidestate

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/creamcroissant/sbnode/internal/fsutil"
)

var ErrCorrupt = errors.New("sidestate: corrupt file")

// CorruptError names the side file that failed to parse.
type CorruptError struct {
	Path string
	Err  error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("side state %s is corrupt (left untouched for manual recovery): %v", e.Path, e.Err)
}

func (e *CorruptError) Is(target error) bool { return target == ErrCorrupt }
func (e *CorruptError) Unwrap() error        { return e.Err }

// Keys is the Reality material generated at create time.
type Keys struct {
	PrivateKey string `json:"private_key"`
	PublicKey  string `json:"public_key"`
	ShortID    string `json:"short_id"`
}

// Empty reports whether no key material is recorded.
func (k Keys) Empty() bool { return k.PrivateKey == "" && k.PublicKey == "" && k.ShortID == "" }

type keysFile struct {
	Reality Keys `json:"reality"`
}

// NodeNames maps username to display label.
type NodeNames map[string]string

// Label returns the display label for username, defaulting to the username.
func (n NodeNames) Label(username string) string {
	if l, ok := n[username]; ok && l != "" {
		return l
	}
	return username
}

// Clone returns an independent copy.
func (n NodeNames) Clone() NodeNames {
	out := make(NodeNames, len(n))
	for k, v := range n {
		out[k] = v
	}
	return out
}

// Usernames returns the labelled usernames, sorted.
func (n NodeNames) Usernames() []string {
	out := make([]string, 0, len(n))
	for k := range n {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Store owns the two side files.
type Store struct {
	KeysPath      string
	NodeNamesPath string
}

// NewStore returns a store for the given paths.
func NewStore(keysPath, nodeNamesPath string) *Store {
	return &Store{KeysPath: keysPath, NodeNamesPath: nodeNamesPath}
}

// LoadKeys reads keys.json. The bool is false when the file does not exist.
func (s *Store) LoadKeys() (Keys, bool, error) {
	data, ok, err := readOptional(s.KeysPath)
	if err != nil || !ok {
		return Keys{}, ok, err
	}
	var kf keysFile
	if err := decodeStrict(data, &kf); err != nil {
		return Keys{}, true, &CorruptError{Path: s.KeysPath, Err: err}
	}
	return kf.Reality, true, nil
}

// SaveKeys replaces keys.json.
func (s *Store) SaveKeys(k Keys) error {
	data, err := EncodeKeys(k)
	if err != nil {
		return err
	}
	return fsutil.WriteFile(s.KeysPath, data, 0o600)
}

// LoadNodeNames reads node_names.json. A missing file yields an empty map.
func (s *Store) LoadNodeNames() (NodeNames, error) {
	data, ok, err := readOptional(s.NodeNamesPath)
	if err != nil {
		return nil, err
	}
	names := NodeNames{}
	if !ok {
		return names, nil
	}
	if err := decodeStrict(data, &names); err != nil {
		return nil, &CorruptError{Path: s.NodeNamesPath, Err: err}
	}
	if names == nil {
		names = NodeNames{}
	}
	return names, nil
}

// SaveNodeNames replaces node_names.json.
func (s *Store) SaveNodeNames(names NodeNames) error {
	data, err := EncodeNodeNames(names)
	if err != nil {
		return err
	}
	return fsutil.WriteFile(s.NodeNamesPath, data, 0o644)
}

// EncodeKeys renders keys.json content.
func EncodeKeys(k Keys) ([]byte, error) {
	return encode(keysFile{Reality: k})
}

// EncodeNodeNames renders node_names.json content.
func EncodeNodeNames(names NodeNames) ([]byte, error) {
	if names == nil {
		names = NodeNames{}
	}
	return encode(names)
}

func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func decodeStrict(data []byte, dst any) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return errors.New("empty file")
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("trailing data after JSON value")
	}
	return nil
}

func readOptional(path string) ([]byte, bool, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		return data, true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	return nil, false, fmt.Errorf("read %s: %w", path, err)
}
