package redirect

import "fmt"

// Kind identifies where a standard channel's bytes come from or go to.
type Kind int

const (
	// KindPipe connects the channel to a fresh pipe whose parent-side end
	// is exposed as a byte stream on the handle. This is the default for
	// all three channels.
	KindPipe Kind = iota

	// KindInherit connects the channel to the corresponding standard file
	// of the current process.
	KindInherit

	// KindDiscard connects the channel to the platform null device.
	KindDiscard

	// KindRead reads the channel from a file. Only valid as an input
	// source.
	KindRead

	// KindWrite writes the channel to a file, truncating it first. Only
	// valid as an output destination.
	KindWrite

	// KindAppend writes the channel to a file, appending to existing
	// content. Only valid as an output destination.
	KindAppend
)

// String returns the manifest spelling of the kind.
func (k Kind) String() string {
	switch k {
	case KindPipe:
		return "pipe"
	case KindInherit:
		return "inherit"
	case KindDiscard:
		return "discard"
	case KindRead:
		return "read"
	case KindWrite:
		return "write"
	case KindAppend:
		return "append"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Redirect describes where one standard channel of a child process reads
// from or writes to. The zero value is a pipe. Redirects are plain values:
// two redirects are equal when their kind and path match, and constructing
// one performs no I/O. Files named by a redirect are opened at launch time
// only.
type Redirect struct {
	kind Kind
	path string
}

// Pipe returns a redirect that connects the channel to a fresh pipe.
func Pipe() Redirect { return Redirect{kind: KindPipe} }

// Inherit returns a redirect that connects the channel to the parent's
// corresponding standard file.
func Inherit() Redirect { return Redirect{kind: KindInherit} }

// Discard returns a redirect that connects the channel to the null device.
func Discard() Redirect { return Redirect{kind: KindDiscard} }

// ReadFrom returns a redirect that reads the channel from the named file.
func ReadFrom(path string) Redirect { return Redirect{kind: KindRead, path: path} }

// WriteTo returns a redirect that writes the channel to the named file,
// truncating any existing content at launch.
func WriteTo(path string) Redirect { return Redirect{kind: KindWrite, path: path} }

// AppendTo returns a redirect that appends the channel to the named file.
func AppendTo(path string) Redirect { return Redirect{kind: KindAppend, path: path} }

// Kind reports the redirect variant.
func (r Redirect) Kind() Kind { return r.kind }

// Path returns the file path for file-backed redirects and the empty
// string otherwise.
func (r Redirect) Path() string { return r.path }

// Append reports whether the redirect appends to its target file.
func (r Redirect) Append() bool { return r.kind == KindAppend }

// ValidSource reports whether the redirect may supply an input channel.
// Write-direction redirects cannot feed a child's stdin.
func (r Redirect) ValidSource() bool {
	return r.kind != KindWrite && r.kind != KindAppend
}

// ValidSink reports whether the redirect may receive an output channel.
func (r Redirect) ValidSink() bool {
	return r.kind != KindRead
}

func (r Redirect) String() string {
	switch r.kind {
	case KindRead, KindWrite, KindAppend:
		return fmt.Sprintf("%s(%s)", r.kind, r.path)
	default:
		return r.kind.String()
	}
}
