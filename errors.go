package ncd

import "errors"

// Sentinel errors for the NCD format. Callers discriminate with errors.Is;
// the detail of each failure is carried in the wrapping message.
var (
	// ErrIO wraps a failure from the underlying accessor or from writing
	// the output file.
	ErrIO = errors.New("ncd: i/o error")

	// ErrCorruptFile marks any structural violation detected while
	// reading: bad magic, bad version, out-of-range offsets, premature
	// EOF, an invalid lesqlite2 encoding, a recursive external entry.
	ErrCorruptFile = errors.New("ncd: corrupt file")

	// ErrBadConfiguration marks invalid builder parameters, such as a
	// forced pointer width that is neither 2 nor 4, or a build that
	// failed to converge within MaxAttempts.
	ErrBadConfiguration = errors.New("ncd: bad configuration")

	// ErrUnsupportedVersion is reserved for future format migrations. A
	// header with an unknown version is reported as ErrCorruptFile.
	ErrUnsupportedVersion = errors.New("ncd: unsupported version")

	// ErrHeapFull and ErrTableFull are internal to a build attempt. They
	// must never escape the exported Build.Attempt method; the build
	// driver catches them, grows the page count, and retries.
	ErrHeapFull  = errors.New("ncd: heap full")
	ErrTableFull = errors.New("ncd: table full")

	// ErrWrongStamp is raised by a page read when the page's trailing
	// table stamp does not match the cached header stamp. FileReader.Get
	// recovers from a transient mismatch by re-reading the header.
	ErrWrongStamp = errors.New("ncd: wrong stamp")

	// ErrBadUTF8 is reserved for CLI argument decoding of keys supplied
	// as quoted strings.
	ErrBadUTF8 = errors.New("ncd: bad utf8")

	// errScratchTooSmall marks a write-side scratch buffer (not a file
	// read) that was too small. It lets the builder distinguish a
	// programmer error in its own scratch sizing from genuine on-disk
	// corruption, via errors.Is.
	errScratchTooSmall = errors.New("ncd: scratch buffer too small")
)
