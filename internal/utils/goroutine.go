package utils

import (
	"runtime/debug"

	"yqhp/token-manager/internal/logger"

	"go.uber.org/zap"
)

// SafeGo 安全地启动一个 goroutine，自动捕获 panic 并记录日志
func SafeGo(fn func()) {
	SafeGoWithName("", fn)
}

// SafeGoWithName 安全地启动一个带名称的 goroutine，便于日志追踪
// 使用方式: utils.SafeGoWithName("create-tokens", func() { ... })
func SafeGoWithName(name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("goroutine panic recovered",
					zap.String("name", name),
					zap.Any("panic", r),
					zap.ByteString("stack", debug.Stack()),
				)
			}
		}()
		fn()
	}()
}
