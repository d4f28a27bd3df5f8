// Package service 包含了应用的业务逻辑层。
package service

import "errors"

// 业务错误分类。Handler 层依据 errors.Is 将其映射为 HTTP 状态码，
// 所有失败只向调用方上抛一次，任何地方都不做重试。
var (
	// ErrValidation 表示请求缺少必要字段或参数非法。
	ErrValidation = errors.New("validation error")
	// ErrNotFound 表示操作的目标会话不存在。
	ErrNotFound = errors.New("not found")
	// ErrUpstream 表示模型服务调用失败或超时。
	ErrUpstream = errors.New("upstream error")
	// ErrInfrastructure 表示存储层不可用，对当前请求是致命的。
	ErrInfrastructure = errors.New("infrastructure error")
)
