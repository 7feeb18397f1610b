package httpclient

import (
	"errors"
	"fmt"
	"io"
)

// ErrBodyTooLarge matches every BodyTooLargeError.
var ErrBodyTooLarge = errors.New("response body too large")

// BodyTooLargeError reports an upstream response over its size cap.
type BodyTooLargeError struct {
	Upstream string
	Limit    int64
}

func (e *BodyTooLargeError) Error() string {
	return fmt.Sprintf("%s response exceeded %d bytes", e.Upstream, e.Limit)
}

func (e *BodyTooLargeError) Is(target error) bool { return target == ErrBodyTooLarge }

// ReadBody reads r up to the upstream's MaxBodyBytes. A zero cap reads
// everything.
func (up Upstream) ReadBody(r io.Reader) ([]byte, error) {
	if up.MaxBodyBytes <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, up.MaxBodyBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > up.MaxBodyBytes {
		return nil, &BodyTooLargeError{Upstream: up.Name, Limit: up.MaxBodyBytes}
	}
	return data, nil
}
