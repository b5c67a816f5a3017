package pipeline

import "fmt"

// Kind classifies where a conversion failed, which determines the
// HTTP status the handler maps it to.
type Kind int

const (
	// KindValidation: the request itself is bad (malformed or
	// disallowed URL).
	KindValidation Kind = iota
	// KindRateLimited: admission denied for a new conversion.
	KindRateLimited
	// KindResolution: every extraction strategy failed.
	KindResolution
	// KindAcquisition: the media URL resolved but the download failed
	// or failed validation.
	KindAcquisition
	// KindTranscode: ffmpeg could not produce the output.
	KindTranscode
	// KindInternal: a local failure (disk, cache index).
	KindInternal
)

// outcome returns the metric label for the kind.
func (k Kind) outcome() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindRateLimited:
		return "ratelimited"
	case KindResolution:
		return "resolution"
	case KindAcquisition:
		return "acquisition"
	case KindTranscode:
		return "transcode"
	default:
		return "internal"
	}
}

// Error is a classified conversion failure.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind.outcome(), e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func fail(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}
