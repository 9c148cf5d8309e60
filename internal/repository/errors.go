// 文件路径: internal/repository/errors.go
// 模块说明: 仓储层的哨兵错误。
package repository

import "errors"

var (
	// ErrNotFound 表示主配置文件尚不存在。
	ErrNotFound = errors.New("config not found")
)
