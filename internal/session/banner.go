package session

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/kmerz/awa-ssh/internal/wire"
)

// versionPrefix is the only protocol version this core speaks, per
// spec.md section 6's banner format.
const versionPrefix = "SSH-2.0-"

// scanBanner looks for a complete CRLF-terminated banner line in buf,
// discarding any preface lines that precede it (lines not themselves
// starting with "SSH-"). It returns ErrNeedMore until a full line is
// available, and ErrMalformed for a line that looks like a banner but
// violates the version-string grammar.
func scanBanner(buf []byte) (peerBanner string, consumed int, err error) {
	start := 0
	for {
		idx := bytes.Index(buf[start:], []byte("\r\n"))
		if idx < 0 {
			return "", 0, ErrNeedMore
		}
		line := string(buf[start : start+idx])
		lineEnd := start + idx + 2
		if strings.HasPrefix(line, "SSH-") {
			banner, err := parseBannerLine(line)
			if err != nil {
				return "", 0, err
			}
			return banner, lineEnd, nil
		}
		start = lineEnd
	}
}

// parseBannerLine validates and strips the "SSH-2.0-" prefix from a
// candidate banner line, per the original accepted grammar: the
// software-version field may not itself contain a hyphen (a further
// hyphen would open a comments field, which this parser does not split
// out separately but does reject as malformed per spec.md's scenario 4).
func parseBannerLine(line string) (string, error) {
	if !strings.HasPrefix(line, versionPrefix) {
		return "", fmt.Errorf("%w: banner does not start with %q", wire.ErrMalformed, versionPrefix)
	}
	rest := line[len(versionPrefix):]
	if rest == "" {
		return "", fmt.Errorf("%w: empty software version", wire.ErrMalformed)
	}
	softwareVersion := rest
	if sp := strings.IndexByte(rest, ' '); sp >= 0 {
		softwareVersion = rest[:sp]
	}
	if strings.Contains(softwareVersion, "-") {
		return "", fmt.Errorf("%w: software version must not contain '-'", wire.ErrMalformed)
	}
	return rest, nil
}
