// Package migrations はキーストアのスキーマ定義SQLを埋め込みで提供する。
package migrations

import "embed"

// FS はバージョン順に適用される .sql ファイル群。
//
//go:embed *.sql
var FS embed.FS
