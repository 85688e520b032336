package ingestion_engine

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/Homedex/internal/core"
)

// streamChunk groups incoming fragments into size-bounded chunks with overlap.
//
// frags:   upstream fragments channel.
// size:    target characters per chunk.
// overlap: characters retained from the end of the previous chunk as seed of the next.
// out:     receive-only channel of chunks with Pos/Text/Page/TokenCnt.
func streamChunk(
	ctx context.Context,
	g *errgroup.Group,
	frags <-chan core.Fragment,
	size int,
	overlap int,
) <-chan chunk {
	out := make(chan chunk, 8)

	g.Go(func() error {
		defer close(out)

		var (
			buf    []core.Fragment
			joined int // length of buf joined with newlines
			pos    int
			fresh  bool // buf holds text not yet emitted
		)

		// flush emits the current buffer as a chunk and keeps an overlap tail.
		flush := func() error {
			if !fresh {
				return nil
			}
			text := joinFragments(buf)
			ch := chunk{Pos: pos, Text: text, Page: buf[0].Page, TokenCnt: approxTokens(text)}
			pos++

			select {
			case out <- ch:
			case <-ctx.Done():
				return ctx.Err()
			}
			log.Debug().Int("chunk", ch.Pos).Int("chars", joined).Int("lines", len(buf)).Msg("chunk emitted")

			buf = overlapTail(buf, overlap)
			joined = runeLen(joinFragments(buf))
			fresh = false
			return nil
		}

		// grown is the joined length after appending n more runes.
		grown := func(n int) int {
			if len(buf) == 0 {
				return n
			}
			return joined + 1 + n
		}

		for frag := range frags {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			for _, piece := range splitRunes(frag.Text, size) {
				n := runeLen(piece)
				if fresh && grown(n) > size {
					if err := flush(); err != nil {
						return err
					}
				}
				// shrink the carried overlap until the piece fits
				for !fresh && len(buf) > 0 && grown(n) > size {
					buf = buf[1:]
					joined = runeLen(joinFragments(buf))
				}
				joined = grown(n)
				buf = append(buf, core.Fragment{Text: piece, Page: frag.Page})
				fresh = true
			}
		}

		return flush()
	})

	return out
}

// overlapTail keeps trailing fragments whose total length fits in budget. A
// last fragment longer than the budget contributes its final budget runes.
func overlapTail(buf []core.Fragment, budget int) []core.Fragment {
	if budget <= 0 || len(buf) == 0 {
		return nil
	}
	var keep []core.Fragment
	remain := budget
	for j := len(buf) - 1; j >= 0; j-- {
		n := runeLen(buf[j].Text)
		if n > remain {
			if len(keep) == 0 {
				r := []rune(buf[j].Text)
				keep = append(keep, core.Fragment{Text: string(r[len(r)-remain:]), Page: buf[j].Page})
			}
			break
		}
		keep = append([]core.Fragment{buf[j]}, keep...)
		remain -= n
	}
	return keep
}

// splitRunes cuts s into pieces of at most max runes.
func splitRunes(s string, max int) []string {
	if max <= 0 || runeLen(s) <= max {
		return []string{s}
	}
	r := []rune(s)
	var out []string
	for len(r) > max {
		out = append(out, string(r[:max]))
		r = r[max:]
	}
	if len(r) > 0 {
		out = append(out, string(r))
	}
	return out
}

func joinFragments(buf []core.Fragment) string {
	parts := make([]string, len(buf))
	for j, f := range buf {
		parts[j] = f.Text
	}
	return strings.Join(parts, "\n")
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }

// approxTokens is a cheap token estimator (~4 chars ≈ 1 token).
func approxTokens(s string) int {
	n := runeLen(s)
	if n <= 0 {
		return 0
	}
	return (n + 3) / 4
}
