// ABOUTME: LIST/INFO metadata extraction
// ABOUTME: Flattens INFO sub-chunks into an id to text map
package wav

import (
	"encoding/binary"
	"strings"
)

// Info collects the text entries of every LIST/INFO chunk, keyed by the
// four-character sub-chunk identifier (INAM, IART, ICMT, ...). Malformed
// entries are skipped; later duplicates override earlier ones.
func (wr *Reader) Info() (map[string]string, error) {
	info := make(map[string]string)
	for _, c := range wr.chunks {
		if c.ID != "LIST" {
			continue
		}
		body, err := wr.readAt(c)
		if err != nil {
			return nil, err
		}
		parseInfoList(body, info)
	}
	return info, nil
}

func parseInfoList(body []byte, into map[string]string) {
	if len(body) < 4 || string(body[:4]) != "INFO" {
		return
	}
	for pos := 4; pos+chunkHeaderLen <= len(body); {
		id := string(body[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(body[pos+4 : pos+8]))
		start := pos + chunkHeaderLen
		if size < 0 || start+size > len(body) {
			return
		}
		if text := strings.TrimRight(string(body[start:start+size]), "\x00 "); text != "" && printableID(id) {
			into[id] = text
		}
		pos = start + size + size&1
	}
}

func printableID(id string) bool {
	for i := 0; i < len(id); i++ {
		if id[i] < 0x20 || id[i] > 0x7E {
			return false
		}
	}
	return true
}
