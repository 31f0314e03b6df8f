// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package batch

import (
	"path/filepath"
	"strings"
	"unicode/utf8"
)

const (
	// maxNameRunes bounds the file name stem derived from a title.
	maxNameRunes = 100

	// maxNameBytes keeps stem plus ".pdf" within the 255-byte name limit
	// of common filesystems.
	maxNameBytes = 255 - len(".pdf")
)

var unsafeChars = strings.NewReplacer(
	`\`, "_", "/", "_", "*", "_", "?", "_", ":", "_",
	`"`, "_", "<", "_", ">", "_", "|", "_",
)

// SanitizeTitle turns a title into a file name stem: path and shell
// metacharacters become underscores and the result is cut to 100 runes,
// and further to whole runes fitting in 251 bytes.
func SanitizeTitle(title string) string {
	s := unsafeChars.Replace(title)
	if r := []rune(s); len(r) > maxNameRunes {
		s = string(r[:maxNameRunes])
	}
	for len(s) > maxNameBytes {
		_, size := utf8.DecodeLastRuneInString(s)
		s = s[:len(s)-size]
	}
	return s
}

// TargetPath is where the artifact for title is saved.
func TargetPath(saveDir, title string) string {
	return filepath.Join(saveDir, SanitizeTitle(title)+".pdf")
}
