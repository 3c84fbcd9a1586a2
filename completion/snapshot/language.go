package snapshot

import (
	"path"
	"strings"
)

var languageByExt = map[string]string{
	".go":    "go",
	".java":  "java",
	".kt":    "kotlin",
	".kts":   "kotlin",
	".py":    "python",
	".js":    "javascript",
	".mjs":   "javascript",
	".jsx":   "javascript",
	".ts":    "typescript",
	".tsx":   "typescript",
	".rs":    "rust",
	".c":     "c",
	".h":     "c",
	".cc":    "cpp",
	".cpp":   "cpp",
	".hpp":   "cpp",
	".cs":    "csharp",
	".rb":    "ruby",
	".php":   "php",
	".swift": "swift",
	".scala": "scala",
	".sh":    "shell",
	".bash":  "shell",
	".sql":   "sql",
	".html":  "html",
	".css":   "css",
	".json":  "json",
	".yaml":  "yaml",
	".yml":   "yaml",
	".toml":  "toml",
	".md":    "markdown",
	".zig":   "zig",
	".lua":   "lua",
}

// DetectLanguage guesses a language name from the extension of a URI or
// path. Unknown extensions report "text".
func DetectLanguage(uri string) string {
	if lang, ok := languageByExt[strings.ToLower(path.Ext(uri))]; ok {
		return lang
	}
	return "text"
}

// LineComment returns the line comment leader for a language, or "//".
func LineComment(language string) string {
	switch language {
	case "python", "ruby", "shell", "yaml", "toml":
		return "#"
	case "sql", "lua":
		return "--"
	default:
		return "//"
	}
}
