package guardian

import "io/fs"

// Path is a regular file discovered directly inside a target directory,
// with the stat info captured when it was listed.
type Path struct {
	absPath string
	name    string
	info    fs.FileInfo
}

// NewPath creates a Path from its components.
// This is primarily for use by FilesystemManager implementations.
func NewPath(absPath, name string, info fs.FileInfo) *Path {
	return &Path{
		absPath: absPath,
		name:    name,
		info:    info,
	}
}

// String returns the absolute path.
func (p *Path) String() string {
	return p.absPath
}

// Name returns the file name relative to the directory it was listed from.
func (p *Path) Name() string {
	return p.name
}

// Info returns the cached file info from when the path was listed.
func (p *Path) Info() fs.FileInfo {
	return p.info
}
