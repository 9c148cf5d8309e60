// 文件路径: internal/service/errors.go
// 模块说明: 生命周期操作的错误分类；CLI 根据这些哨兵错误决定提示语与退出码。
package service

import (
	"errors"
	"fmt"
)

var (
	// ErrConfigMissing indicates config.json does not exist yet.
	ErrConfigMissing = errors.New("service: not configured, run `sbnode config create` first / 尚未创建配置")
	// ErrConfigMalformed indicates config.json exists but has the wrong shape.
	ErrConfigMalformed = errors.New("service: config malformed / 配置文件格式错误")
	// ErrIncomplete indicates the config lacks what a restart needs.
	ErrIncomplete = errors.New("service: config incomplete / 配置不完整")
	// ErrConflict indicates the username is already taken.
	ErrConflict = errors.New("service: user already exists / 用户已存在")
	// ErrNotFound indicates the username is not configured.
	ErrNotFound = errors.New("service: user not found / 用户不存在")
	// ErrCollaborator indicates an external tool failed.
	ErrCollaborator = errors.New("service: external command failed / 外部命令执行失败")
	// ErrCollaboratorTimeout indicates an external tool did not finish in time.
	ErrCollaboratorTimeout = errors.New("service: external command timed out / 外部命令超时")
	// ErrCorruptSideState indicates keys.json or node_names.json does not parse.
	ErrCorruptSideState = errors.New("service: side state corrupt / 附属文件损坏")
	// ErrKeysMissing indicates keys.json is absent so Reality links cannot be derived.
	ErrKeysMissing = errors.New("service: reality keys missing / 缺少 Reality 密钥")
	// ErrAborted indicates the operator declined a confirmation.
	ErrAborted = errors.New("service: aborted by operator / 操作已取消")
	// ErrInvalidInput indicates a bad username, label, port or secret.
	ErrInvalidInput = errors.New("service: invalid input / 输入无效")
)

// CollaboratorError records which external tool failed and during what.
type CollaboratorError struct {
	Collaborator string
	Op           string
	Err          error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Collaborator, e.Op, e.Err)
}

func (e *CollaboratorError) Is(target error) bool { return target == ErrCollaborator }
func (e *CollaboratorError) Unwrap() error        { return e.Err }
