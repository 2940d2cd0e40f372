// Package udiff parses unified ("git diff") patches and applies them to file contents.
//
// Parse turns diff text into a PatchSet: one PatchedFile per file header, each holding
// its hunks in order. PatchedFile.Apply folds those hunks over the caller supplied
// content and returns the patched content, searching a bounded number of lines around
// each hunk's declared position when the file has drifted. ApplyFilesystem and
// ApplyToMemory drive whole patch sets against a working tree or an in-memory map.
//
// Parsing and application are pure functions of their inputs, so parsed patch sets
// can be shared between goroutines freely.
package udiff
