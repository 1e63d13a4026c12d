package domain

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
)

// Photo is an image attached to a tree. On the wire it is a data URI
// ("data:image/jpeg;base64,..."). Data is never modified once the photo is
// stored; stores share it between snapshots.
type Photo struct {
	ContentType string
	Data        []byte
}

// ParsePhoto decodes a data URI or a bare base64 payload. The content type of
// a bare payload is sniffed from its bytes.
func ParsePhoto(raw string) (Photo, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Photo{}, InputError{Field: "photo", Reason: "must not be empty"}
	}
	if !strings.HasPrefix(s, "data:") {
		data, err := decodeBase64(s)
		if err != nil {
			return Photo{}, InputError{Field: "photo", Reason: "payload is not base64"}
		}
		return Photo{ContentType: http.DetectContentType(data), Data: data}, nil
	}
	header, payload, ok := strings.Cut(strings.TrimPrefix(s, "data:"), ",")
	if !ok {
		return Photo{}, InputError{Field: "photo", Reason: "data URI missing payload separator"}
	}
	mediaType, isBase64 := strings.CutSuffix(header, ";base64")
	if !isBase64 {
		return Photo{}, InputError{Field: "photo", Reason: "data URI must be base64 encoded"}
	}
	data, err := decodeBase64(payload)
	if err != nil {
		return Photo{}, InputError{Field: "photo", Reason: "payload is not base64"}
	}
	if mediaType == "" {
		mediaType = http.DetectContentType(data)
	}
	return Photo{ContentType: mediaType, Data: data}, nil
}

// DataURI renders the photo in its wire form.
func (p Photo) DataURI() string {
	ct := p.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	return "data:" + ct + ";base64," + base64.StdEncoding.EncodeToString(p.Data)
}

// Clone returns a deep copy.
func (p Photo) Clone() Photo {
	return Photo{ContentType: p.ContentType, Data: append([]byte(nil), p.Data...)}
}

// MarshalJSON renders the photo as a data URI string.
func (p Photo) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.DataURI())
}

// UnmarshalJSON parses a data URI or bare base64 string.
func (p *Photo) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParsePhoto(raw)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

func decodeBase64(s string) ([]byte, error) {
	if data, err := base64.StdEncoding.DecodeString(s); err == nil {
		return data, nil
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}
