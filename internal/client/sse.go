package client

import (
	"bufio"
	"io"
	"strings"
)

// sseReader splits a text/event-stream body into message payloads.
// Comment lines (heartbeats) are skipped and event/id/retry fields are
// accepted but not used.
type sseReader struct {
	r *bufio.Reader
}

func newSSEReader(r io.Reader) *sseReader {
	return &sseReader{r: bufio.NewReader(r)}
}

// next returns the data of the next dispatched message. It returns io.EOF
// when the body ends; a partially received message at EOF is dropped.
func (s *sseReader) next() (string, error) {
	var (
		data    strings.Builder
		hasData bool
	)

	for {
		line, err := s.r.ReadString('\n')
		if err != nil && (err != io.EOF || line == "") {
			return "", err
		}

		line = strings.TrimRight(line, "\r\n")

		if line == "" {
			if err == io.EOF {
				return "", io.EOF
			}

			if hasData {
				return data.String(), nil
			}

			continue
		}

		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")

		if field == "data" {
			if hasData {
				data.WriteByte('\n')
			}

			data.WriteString(value)
			hasData = true
		}

		if err == io.EOF {
			return "", io.EOF
		}
	}
}
