package processors

import (
	"strings"
	"unicode/utf8"
)

// chunkText is one piece of an entity queued for embedding.
type chunkText struct {
	Text     string
	Keywords []string
}

// buildChunks returns the summary chunk followed by transcript chunks of at
// most size runes. Lines are kept whole unless a single line exceeds size.
// The summary chunk carries every keyword; transcript chunks carry the
// keywords they mention.
func buildChunks(summary Summary, transcript string, size int) []chunkText {
	var out []chunkText
	if text := summary.Text(); text != "" {
		out = append(out, chunkText{Text: text, Keywords: summary.Keywords})
	}
	for _, piece := range splitLines(transcript, size) {
		out = append(out, chunkText{Text: piece, Keywords: mentioned(piece, summary.Keywords)})
	}
	return out
}

func splitLines(text string, size int) []string {
	var out []string
	var cur strings.Builder
	curLen := 0
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			out = append(out, s)
		}
		cur.Reset()
		curLen = 0
	}

	for _, line := range strings.Split(text, "\n") {
		n := utf8.RuneCountInString(line)
		if n > size {
			flush()
			r := []rune(line)
			for lo := 0; lo < len(r); lo += size {
				out = append(out, string(r[lo:min(lo+size, len(r))]))
			}
			continue
		}
		if curLen > 0 && curLen+1+n > size {
			flush()
		}
		if curLen > 0 {
			cur.WriteByte('\n')
			curLen++
		}
		cur.WriteString(line)
		curLen += n
	}
	flush()
	return out
}

func mentioned(text string, keywords []string) []string {
	lower := strings.ToLower(text)
	var out []string
	for _, k := range keywords {
		if strings.Contains(lower, k) {
			out = append(out, k)
		}
	}
	return out
}
