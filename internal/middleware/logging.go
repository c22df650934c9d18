// Package middleware はHTTPミドルウェアと監査ログを提供する。
package middleware

import (
	"context"
	"log/slog"
	"time"
)

// 監査ログの結果。
const (
	AuditSuccess = "SUCCESS"
	AuditFailed  = "FAILED"
)

// WriteAuditLog は監査ログを出力する。subject が空の場合は subject 項目を省略する。
// トークンや鍵の値は渡さないこと。
func WriteAuditLog(ctx context.Context, operation string, subject string, result string) {
	attrs := []any{
		"operation", operation,
		"result", result,
		"timestamp", time.Now().UTC().Format(time.RFC3339),
	}
	if subject != "" {
		attrs = append(attrs, "subject", subject)
	}
	slog.InfoContext(ctx, "token operation completed", attrs...)
}
