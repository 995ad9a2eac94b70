// Package upload はアップロードされた画像の安全性検査と保存を提供する。
package upload

import (
	"bytes"
	"errors"
	"io"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/net/html"
)

// 許可する形式（拡張子 → MIMEタイプ）
var allowedTypes = map[string]string{
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"webp": "image/webp",
	"svg":  "image/svg+xml",
}

// SVG内で禁止する要素（小文字）
var forbiddenSVGElements = map[string]bool{
	"script":        true,
	"foreignobject": true,
	"iframe":        true,
	"embed":         true,
	"object":        true,
}

// URLを取る属性
var urlAttributes = map[string]bool{
	"href":       true,
	"xlink:href": true,
	"src":        true,
	"action":     true,
	"formaction": true,
}

// ラスタ画像に埋め込まれていれば拒否するマーカー
var rasterMarkers = [][]byte{
	[]byte("<script"),
	[]byte("<?php"),
}

// Result は検査結果。
type Result struct {
	Safe        bool
	Reason      string
	ContentType string
	Ext         string
}

func unsafe(reason string) Result {
	return Result{Safe: false, Reason: reason}
}

// Scanner はファイルの内容と拡張子を検査する。
type Scanner struct{}

// NewScanner はScannerを生成する。
func NewScanner() *Scanner {
	return &Scanner{}
}

// Scan はファイルが許可された画像形式で、能動的なコンテンツを含まないかを検査する。
func (s *Scanner) Scan(name string, data []byte) Result {
	if len(data) == 0 {
		return unsafe("file is empty")
	}

	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	expected, ok := allowedTypes[ext]
	if !ok {
		return unsafe("file extension is not allowed")
	}

	detected := mimetype.Detect(data)
	contentType := ""
	for _, t := range allowedTypes {
		if detected.Is(t) {
			contentType = t
			break
		}
	}
	if contentType == "" {
		return unsafe("file content is not an allowed image type")
	}
	if contentType != expected {
		return unsafe("file extension does not match its content")
	}

	if contentType == "image/svg+xml" {
		if reason := scanSVG(data); reason != "" {
			return unsafe(reason)
		}
	} else {
		lower := bytes.ToLower(data)
		for _, marker := range rasterMarkers {
			if bytes.Contains(lower, marker) {
				return unsafe("image contains embedded script content")
			}
		}
	}

	return Result{Safe: true, ContentType: contentType, Ext: ext}
}

// scanSVG はSVGをトークン化し、能動的なコンテンツがあれば理由を返す。
func scanSVG(data []byte) string {
	z := html.NewTokenizer(bytes.NewReader(data))
	for {
		switch z.Next() {
		case html.ErrorToken:
			if errors.Is(z.Err(), io.EOF) {
				return ""
			}
			return "svg could not be parsed"
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			if forbiddenSVGElements[string(name)] {
				return "svg contains forbidden element <" + string(name) + ">"
			}
			for hasAttr {
				var key, val []byte
				key, val, hasAttr = z.TagAttr()
				k := strings.ToLower(string(key))
				if strings.HasPrefix(k, "on") {
					return "svg contains event handler attribute " + k
				}
				if urlAttributes[k] && isDangerousURL(string(val)) {
					return "svg contains a dangerous URL in " + k
				}
			}
		}
	}
}

// isDangerousURL はスクリプトを実行しうるURLかを判定する。
// ブラウザはスキーム中の空白・制御文字を無視するため、除去してから比較する。
func isDangerousURL(raw string) bool {
	var b strings.Builder
	for _, r := range strings.ToLower(raw) {
		if r <= ' ' {
			continue
		}
		b.WriteRune(r)
	}
	v := b.String()
	return strings.HasPrefix(v, "javascript:") ||
		strings.HasPrefix(v, "vbscript:") ||
		strings.HasPrefix(v, "data:text/html")
}
