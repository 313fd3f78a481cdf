package extract

import (
	"encoding/base64"
	"regexp"
	"strings"

	"github.com/sheetpoll/sheetpoll/dedup"
	"github.com/sheetpoll/sheetpoll/model"
)

// The extractor is a targeted scan over non-fully-parsed MIME, not a general
// multipart parser. Structural preconditions: attachment parts are
// base64-encoded and delimited by a literal "--" boundary sequence appearing
// after the disposition marker. Any violation is treated as "no qualifying
// attachment", never as an error.

var (
	dispositionPattern = regexp.MustCompile(`attachment;\s*filename="([^"]+)"`)
	encodingLabel      = regexp.MustCompile(`(?i)Content-Transfer-Encoding:\s*base64`)
)

// mimeTypes maps qualifying extensions to their content type. Anything not
// explicitly listed falls back to application/octet-stream.
var mimeTypes = map[string]string{
	"xls":  "application/vnd.ms-excel",
	"xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

var spreadsheetExtensions = map[string]struct{}{
	"xls":  {},
	"xlsx": {},
}

// MimeType derives the content type for a lower-cased extension.
func MimeType(extension string) string {
	if mt, ok := mimeTypes[extension]; ok {
		return mt
	}
	return "application/octet-stream"
}

// HasAttachmentMarker is the cheap pre-check applied right after body
// retrieval: it reports whether the body contains any attachment disposition
// at all, so messages without one are dropped before the full scan runs.
func HasAttachmentMarker(rawBody string) bool {
	return dispositionPattern.MatchString(rawBody)
}

// Extract scans the raw body for attachment parts carrying a spreadsheet
// extension, decodes them and assigns per-attachment identity and duplicate
// status. Parts with unknown extensions, missing boundaries or malformed
// base64 payloads are skipped. The result maps attachment hash to record;
// collisions within one message keep the first occurrence.
func Extract(rawBody string, deduper *dedup.Deduper) map[string]*model.Attachment {
	found := make(map[string]*model.Attachment)

	for _, m := range dispositionPattern.FindAllStringSubmatchIndex(rawBody, -1) {
		original := rawBody[m[2]:m[3]]

		ext := extension(original)
		if _, ok := spreadsheetExtensions[ext]; !ok {
			continue
		}

		encoded, ok := encodedPayload(rawBody[m[1]:])
		if !ok {
			continue
		}

		decoded, err := decodeBase64(encoded)
		if err != nil {
			continue
		}

		hash := dedup.AttachmentHash(encoded)
		if _, seen := found[hash]; seen {
			continue
		}

		att := &model.Attachment{
			Hash:             hash,
			OriginalFilename: original,
			Filename:         hash + "." + ext,
			Extension:        ext,
			MimeType:         MimeType(ext),
			Size:             len(decoded),
			Decoded:          decoded,
			Encoded:          encoded,
			Status:           model.StatusPendingApproval,
		}
		if res := deduper.CheckAttachment(hash); res.Duplicate() {
			att.DuplicateOf = res.Of
		}
		found[hash] = att
	}

	return found
}

// encodedPayload isolates the base64 payload of one part: everything between
// the disposition marker and the next "--" boundary, minus the transfer
// encoding label, trimmed of surrounding whitespace.
func encodedPayload(rest string) (string, bool) {
	boundary := strings.Index(rest, "--")
	if boundary < 0 {
		return "", false
	}
	segment := encodingLabel.ReplaceAllString(rest[:boundary], "")
	segment = strings.TrimSpace(segment)
	if segment == "" {
		return "", false
	}
	return segment, true
}

func extension(filename string) string {
	idx := strings.LastIndex(filename, ".")
	if idx < 0 || idx == len(filename)-1 {
		return ""
	}
	return strings.ToLower(filename[idx+1:])
}

// decodeBase64 decodes a payload that may still carry line wrapping.
func decodeBase64(encoded string) ([]byte, error) {
	compact := strings.Map(func(r rune) rune {
		switch r {
		case '\r', '\n', '\t', ' ':
			return -1
		}
		return r
	}, encoded)
	return base64.StdEncoding.DecodeString(compact)
}
