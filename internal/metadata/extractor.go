// Package metadata extracts generation metadata from gallery images.
// Generated PNGs carry their prompt and workflow as JSON in text chunks;
// other formats yield dimensions only.
package metadata

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"image"
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"io"
	"os"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/webp" // register WebP decoder
)

// maxChunkSize caps how much of a single PNG text chunk is read. Workflow
// payloads are large but not unbounded; anything bigger is malformed.
const maxChunkSize = 32 << 20

var pngSignature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

// Extract reads metadata for the image at path: decoded width, height and
// format, plus any PNG text-chunk keywords (prompt, workflow, parameters).
// Chunk values that parse as JSON are stored decoded.
func Extract(path string) (map[string]any, error) {
	f, err := os.Open(path) //nolint:gosec // G304: path comes from a directory walk, not user input
	if err != nil {
		return nil, fmt.Errorf("opening image: %w", err)
	}
	defer f.Close() //nolint:errcheck

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return nil, fmt.Errorf("decoding image header: %w", err)
	}

	meta := map[string]any{
		"width":  cfg.Width,
		"height": cfg.Height,
		"format": format,
	}

	if strings.EqualFold(filepath.Ext(path), ".png") {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return meta, nil
		}
		for key, value := range readPNGText(f) {
			meta[key] = value
		}
	}

	return meta, nil
}

// readPNGText walks the PNG chunk stream and collects tEXt, zTXt and iTXt
// keyword/value pairs. Malformed chunks end the walk; whatever was
// collected before the damage still counts.
func readPNGText(r io.Reader) map[string]any {
	out := make(map[string]any)

	sig := make([]byte, len(pngSignature))
	if _, err := io.ReadFull(r, sig); err != nil || !bytes.Equal(sig, pngSignature) {
		return out
	}

	var header [8]byte
	for {
		if _, err := io.ReadFull(r, header[:]); err != nil {
			return out
		}
		length := binary.BigEndian.Uint32(header[:4])
		ctype := string(header[4:8])

		if length > maxChunkSize {
			return out
		}
		if ctype == "IEND" {
			return out
		}

		isText := ctype == "tEXt" || ctype == "zTXt" || ctype == "iTXt"
		if !isText {
			// Skip data plus CRC.
			if _, err := io.CopyN(io.Discard, r, int64(length)+4); err != nil {
				return out
			}
			continue
		}

		data := make([]byte, length)
		if _, err := io.ReadFull(r, data); err != nil {
			return out
		}
		// Discard CRC; corruption here is harmless for metadata purposes.
		if _, err := io.CopyN(io.Discard, r, 4); err != nil {
			return out
		}

		if key, value, ok := decodeTextChunk(ctype, data); ok {
			out[key] = parseValue(value)
		}
	}
}

// decodeTextChunk splits one text chunk into keyword and value, inflating
// compressed payloads.
func decodeTextChunk(ctype string, data []byte) (key, value string, ok bool) {
	sep := bytes.IndexByte(data, 0)
	if sep <= 0 {
		return "", "", false
	}
	key = string(data[:sep])
	rest := data[sep+1:]

	switch ctype {
	case "tEXt":
		return key, string(rest), true

	case "zTXt":
		// compression method byte, then zlib stream.
		if len(rest) < 1 || rest[0] != 0 {
			return "", "", false
		}
		text, err := inflate(rest[1:])
		if err != nil {
			return "", "", false
		}
		return key, text, true

	case "iTXt":
		// compression flag, compression method, language tag,
		// translated keyword, then the text.
		if len(rest) < 2 {
			return "", "", false
		}
		compressed := rest[0] == 1
		rest = rest[2:]
		for i := 0; i < 2; i++ {
			nul := bytes.IndexByte(rest, 0)
			if nul < 0 {
				return "", "", false
			}
			rest = rest[nul+1:]
		}
		if !compressed {
			return key, string(rest), true
		}
		text, err := inflate(rest)
		if err != nil {
			return "", "", false
		}
		return key, text, true
	}
	return "", "", false
}

func inflate(data []byte) (string, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	defer zr.Close() //nolint:errcheck
	text, err := io.ReadAll(io.LimitReader(zr, maxChunkSize))
	if err != nil {
		return "", err
	}
	return string(text), nil
}

// parseValue decodes JSON payloads (prompt and workflow chunks are JSON
// documents) and falls back to the raw string.
func parseValue(s string) any {
	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		var v any
		if err := json.Unmarshal([]byte(trimmed), &v); err == nil {
			return v
		}
	}
	return s
}
