package cmd

import (
	"path/filepath"
	"strings"

	"github.com/codexplain/codexplain/internal/core"
)

// extensionLanguages is a hint table only; the provider reports the language
// it actually analyzed.
var extensionLanguages = map[string]string{
	".c":     "c",
	".h":     "c",
	".cc":    "cpp",
	".cpp":   "cpp",
	".hpp":   "cpp",
	".cs":    "csharp",
	".go":    "go",
	".java":  "java",
	".js":    "javascript",
	".mjs":   "javascript",
	".jsx":   "javascript",
	".ts":    "typescript",
	".tsx":   "typescript",
	".kt":    "kotlin",
	".py":    "python",
	".rb":    "ruby",
	".rs":    "rust",
	".php":   "php",
	".swift": "swift",
	".scala": "scala",
	".sh":    "bash",
	".bash":  "bash",
	".sql":   "sql",
	".lua":   "lua",
	".hs":    "haskell",
	".ex":    "elixir",
	".exs":   "elixir",
}

// resolveLanguage prefers the explicit flag, then the file extension, then
// lets the provider detect the language.
func resolveLanguage(flagValue, path string) string {
	if lang := strings.TrimSpace(flagValue); lang != "" {
		return strings.ToLower(lang)
	}
	if lang, ok := extensionLanguages[strings.ToLower(filepath.Ext(path))]; ok {
		return lang
	}
	return core.DefaultLanguage
}
