// Package sse reads server-sent event streams.
package sse

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
)

// Done is the conventional terminal payload of a stream.
const Done = "[DONE]"

// ErrStop may be returned by a handler to end scanning without error.
var ErrStop = errors.New("stop scanning")

const maxLine = 1 << 20

// Scan calls fn with the payload of every "data:" line in r until the
// stream ends, ctx is canceled, or fn returns an error.
func Scan(ctx context.Context, r io.Reader, fn func(data string) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := scanner.Text()
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}

		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}

		if err := fn(data); err != nil {
			if errors.Is(err, ErrStop) {
				return nil
			}
			return err
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	return scanner.Err()
}
