// 文件路径: internal/repository/repository.go
// 模块说明: 主配置 config.json 与两个附属文件的读写入口；多文件修改经 fsutil.Txn 一次性提交。
package repository

import (
	"errors"
	"fmt"
	"os"

	"github.com/creamcroissant/sbnode/internal/document"
	"github.com/creamcroissant/sbnode/internal/fsutil"
	"github.com/creamcroissant/sbnode/internal/sidestate"
)

// Repository owns config.json, keys.json and node_names.json.
type Repository struct {
	configPath string
	side       *sidestate.Store
}

// New returns a repository over the three paths.
func New(configPath, keysPath, nodeNamesPath string) *Repository {
	return &Repository{configPath: configPath, side: sidestate.NewStore(keysPath, nodeNamesPath)}
}

func (r *Repository) ConfigPath() string    { return r.configPath }
func (r *Repository) KeysPath() string      { return r.side.KeysPath }
func (r *Repository) NodeNamesPath() string { return r.side.NodeNamesPath }

// Exists reports whether config.json is present.
func (r *Repository) Exists() (bool, error) {
	return fsutil.Exists(r.configPath)
}

// LoadDocument reads and parses config.json. A missing file returns
// ErrNotFound; a file that does not parse returns document.ErrMalformed.
func (r *Repository) LoadDocument() (*document.Document, error) {
	data, err := os.ReadFile(r.configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, r.configPath)
		}
		return nil, fmt.Errorf("read %s: %w", r.configPath, err)
	}
	doc, err := document.Load(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", r.configPath, err)
	}
	return doc, nil
}

// LoadKeys reads keys.json; the bool is false when it does not exist.
func (r *Repository) LoadKeys() (sidestate.Keys, bool, error) { return r.side.LoadKeys() }

// LoadNodeNames reads node_names.json; missing means empty.
func (r *Repository) LoadNodeNames() (sidestate.NodeNames, error) { return r.side.LoadNodeNames() }

// Changes lists what to persist. Nil fields are left alone.
type Changes struct {
	Document  *document.Document
	Keys      *sidestate.Keys
	NodeNames sidestate.NodeNames
}

// Empty reports whether there is nothing to write.
func (c Changes) Empty() bool {
	return c.Document == nil && c.Keys == nil && c.NodeNames == nil
}

// CommitResult tells the caller which files were actually rewritten.
type CommitResult struct {
	Written []string
	// Fingerprint is the config.json digest after the commit, when it was part of it.
	Fingerprint string
}

// Commit writes every changed file or none. Files whose content would not
// change are skipped.
func (r *Repository) Commit(c Changes) (CommitResult, error) {
	var (
		txn fsutil.Txn
		res CommitResult
	)
	if c.Document != nil {
		data, err := c.Document.Serialize()
		if err != nil {
			return res, fmt.Errorf("serialize %s: %w", r.configPath, err)
		}
		res.Fingerprint = document.Fingerprint(data)
		if changed(r.configPath, res.Fingerprint) {
			txn.Add(r.configPath, data, 0o644)
		}
	}
	if c.Keys != nil {
		data, err := sidestate.EncodeKeys(*c.Keys)
		if err != nil {
			return res, fmt.Errorf("encode keys: %w", err)
		}
		if changed(r.side.KeysPath, document.Fingerprint(data)) {
			txn.Add(r.side.KeysPath, data, 0o600)
		}
	}
	if c.NodeNames != nil {
		data, err := sidestate.EncodeNodeNames(c.NodeNames)
		if err != nil {
			return res, fmt.Errorf("encode node names: %w", err)
		}
		if changed(r.side.NodeNamesPath, document.Fingerprint(data)) {
			txn.Add(r.side.NodeNamesPath, data, 0o644)
		}
	}
	if txn.Len() == 0 {
		return res, nil
	}
	if err := txn.Commit(); err != nil {
		return res, err
	}
	res.Written = txn.Paths()
	return res, nil
}

// changed compares the on-disk digest with want. Unreadable files count as changed.
func changed(path, want string) bool {
	cur, err := os.ReadFile(path)
	if err != nil {
		return true
	}
	return document.Fingerprint(cur) != want
}
