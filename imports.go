package ember

import (
	"path"
	"strings"
)

// canonicalizeImportPath resolves importPath the way §6 specifies:
// relative to the importing file's directory unless it begins with
// "/", with "./" and "../" segments rewritten lexically (never by
// probing the filesystem) and a ".ape" suffix appended when missing.
func canonicalizeImportPath(importerFile, importPath string) string {
	p := importPath
	if !strings.HasSuffix(p, ".ape") {
		p += ".ape"
	}
	if strings.HasPrefix(importPath, "/") {
		return path.Clean(p)
	}
	dir := path.Dir(importerFile)
	if dir == "." || dir == "" {
		return path.Clean(p)
	}
	return path.Clean(path.Join(dir, p))
}

// moduleNameFromPath derives the "modname" half of a "modname::symbol"
// alias from a canonicalised import path: its base file name without
// the ".ape" extension.
func moduleNameFromPath(canonicalPath string) string {
	return strings.TrimSuffix(path.Base(canonicalPath), ".ape")
}
