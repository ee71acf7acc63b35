package transcode

import (
	"bufio"
	"io"
	"strings"
)

// legacyDone is the sentinel frame terminating a legacy upstream
// stream (spec.md §4.8).
const legacyDone = "[DONE]"

// ScanLegacyFrames reads line-delimited `data: <json>` SSE frames from
// r, invoking onChunk for each decoded chunk and returning after the
// `data: [DONE]` sentinel or when r is exhausted. A frame that fails
// to parse is an UpstreamProtocol error (spec.md §7): it is skipped,
// never fails the stream. If onChunk returns an error (e.g. the
// caller's socket broke), scanning stops immediately and that error
// is returned so the caller can distinguish a dropped client from a
// clean finish.
func ScanLegacyFrames(r io.Reader, onChunk func(LegacyChunk) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			data, ok = strings.CutPrefix(line, "data:")
			if !ok {
				continue
			}
			data = strings.TrimPrefix(data, " ")
		}
		data = strings.TrimSpace(data)
		if data == "" {
			continue
		}
		if data == legacyDone {
			return nil
		}
		chunk, err := ParseLegacyChunk([]byte(data))
		if err != nil {
			continue
		}
		if err := onChunk(chunk); err != nil {
			return err
		}
	}
	return scanner.Err()
}
