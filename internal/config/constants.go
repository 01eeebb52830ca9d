package config

import "strings"

const SourceFileExt = ".fool"

// SourceFileExtensions are all recognized source file extensions
var SourceFileExtensions = []string{".fool", ".fl"}

// AssemblyFileExt is the textual instruction form written by -S.
const AssemblyFileExt = ".svm"

// ImageFileExt is the binary program image written by -o.
const ImageFileExt = ".svmb"

// Built-in function names
const (
	PrintFuncName = "print"
)

// Built-in type names
const (
	IntTypeName  = "int"
	BoolTypeName = "bool"
	VoidTypeName = "void"
)

// VM limits used when no config file overrides them.
const (
	DefaultMaxStackDepth = 1024 * 64
	DefaultMaxFrameDepth = 4096

	// CancelCheckInterval is how many instructions run between context checks.
	CancelCheckInterval = 1000
)

// Config file names searched by FindConfig, in order.
var ConfigFileNames = []string{"foolvm.yaml", "foolvm.yml", "foolvm.toml"}

// IsSourceFile checks if a file has a recognized source extension
func IsSourceFile(path string) bool {
	for _, ext := range SourceFileExtensions {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}
