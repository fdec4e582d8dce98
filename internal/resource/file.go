package resource

import (
	"fmt"
	"os"
	"path"
	"strconv"
)

// FileEnsure is the desired kind of filesystem object
type FileEnsure string

const (
	FileEnsureFile      FileEnsure = "file"
	FileEnsureDirectory FileEnsure = "directory"
	FileEnsureLink      FileEnsure = "link"
	FileEnsureAbsent    FileEnsure = "absent"
)

// FileResource represents a file, directory or symbolic link identified by its absolute path
type FileResource struct {
	BaseResource `json:",inline"`
	Spec         FileSpec    `json:"spec"`
	Status       *FileStatus `json:"-"`
}

// FileSpec defines the specification for a file
type FileSpec struct {
	Ensure  FileEnsure `json:"ensure,omitempty"`
	Content *string    `json:"content,omitempty"` // nil leaves content unmanaged
	Target  string     `json:"target,omitempty"`  // link target
	Owner   string     `json:"owner,omitempty"`
	Group   string     `json:"group,omitempty"`
	Mode    string     `json:"mode,omitempty"` // octal, e.g. "0640"
}

// FileStatus carries observed content facts
type FileStatus struct {
	Size   int64
	Digest string // empty when the file was too large to hash
}

// NewFileResource creates a new FileResource
func NewFileResource(filePath string) *FileResource {
	return &FileResource{
		BaseResource: newBase(ResourceTypeFile, "File", filePath),
		Spec:         FileSpec{Ensure: FileEnsureFile},
	}
}

// IsAbsent implements Resource interface
func (f *FileResource) IsAbsent() bool {
	return f.Spec.Ensure == FileEnsureAbsent
}

// SetContent sets managed content
func (f *FileResource) SetContent(content string) {
	f.Spec.Content = &content
}

// FileMode parses the octal mode, returning def when unset
func (f *FileResource) FileMode(def os.FileMode) (os.FileMode, error) {
	if f.Spec.Mode == "" {
		return def, nil
	}
	mode, err := strconv.ParseUint(f.Spec.Mode, 8, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid mode %q: %w", f.Spec.Mode, err)
	}
	return os.FileMode(mode) & os.ModePerm, nil
}

// Validate checks the file specification
func (f *FileResource) Validate() []error {
	var errs []error

	if !path.IsAbs(f.GetName()) {
		errs = append(errs, fmt.Errorf("file path must be absolute: %q", f.GetName()))
	}

	switch f.Spec.Ensure {
	case FileEnsureFile, FileEnsureDirectory, FileEnsureAbsent:
	case FileEnsureLink:
		if f.Spec.Target == "" {
			errs = append(errs, fmt.Errorf("file %s: link requires a target", f.GetName()))
		}
	default:
		errs = append(errs, fmt.Errorf("file %s: invalid ensure %q", f.GetName(), f.Spec.Ensure))
	}

	if f.Spec.Content != nil && f.Spec.Ensure != FileEnsureFile {
		errs = append(errs, fmt.Errorf("file %s: content is only valid for ensure file", f.GetName()))
	}

	if _, err := f.FileMode(0); err != nil {
		errs = append(errs, fmt.Errorf("file %s: %w", f.GetName(), err))
	}

	return errs
}
