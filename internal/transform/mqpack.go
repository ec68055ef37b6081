package transform

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"

	"github.com/ShayCichocki/assetflow/internal/pipeline"
)

// PackMediaQueries merges top-level @media blocks with identical queries and
// moves them to the end of each stylesheet, in the order each query first
// appears.
func PackMediaQueries() pipeline.Stage {
	return pipeline.Map("mqpacker", func(_ context.Context, f *pipeline.File) (*pipeline.File, error) {
		packed, err := PackMedia(f.Contents)
		if err != nil {
			return nil, err
		}
		out := f.Clone()
		out.Contents = packed
		return out, nil
	})
}

type mediaBlock struct {
	query string
	body  bytes.Buffer
}

// PackMedia is the stylesheet-level form of PackMediaQueries. Input without
// top-level @media rules is returned unchanged.
func PackMedia(src []byte) ([]byte, error) {
	l := css.NewLexer(parse.NewInputBytes(src))

	var rest bytes.Buffer
	var blocks []*mediaBlock
	byQuery := make(map[string]*mediaBlock)
	depth := 0

	for {
		tt, data := l.Next()
		if tt == css.ErrorToken {
			if l.Err() == io.EOF {
				break
			}
			return nil, l.Err()
		}

		if depth == 0 && tt == css.AtKeywordToken && strings.EqualFold(string(data), "@media") {
			query, body, err := readMedia(l)
			if err != nil {
				return nil, err
			}
			b, ok := byQuery[query]
			if !ok {
				b = &mediaBlock{query: query}
				byQuery[query] = b
				blocks = append(blocks, b)
			}
			if b.body.Len() > 0 {
				b.body.WriteString("\n")
			}
			b.body.Write(body)
			continue
		}

		switch tt {
		case css.LeftBraceToken:
			depth++
		case css.RightBraceToken:
			depth--
		}
		rest.Write(data)
	}

	if len(blocks) == 0 {
		return src, nil
	}

	out := bytes.TrimRight(rest.Bytes(), " \t\r\n")
	var buf bytes.Buffer
	buf.Write(out)
	for _, b := range blocks {
		if buf.Len() > 0 {
			buf.WriteString("\n")
		}
		fmt.Fprintf(&buf, "@media %s {\n%s\n}", b.query, strings.Trim(b.body.String(), "\r\n"))
	}
	buf.WriteString("\n")
	return buf.Bytes(), nil
}

// readMedia consumes an @media prelude and block and returns the normalized
// query with the raw block contents.
func readMedia(l *css.Lexer) (string, []byte, error) {
	var prelude bytes.Buffer
	for {
		tt, data := l.Next()
		if tt == css.ErrorToken {
			return "", nil, fmt.Errorf("unterminated @media rule")
		}
		if tt == css.LeftBraceToken {
			break
		}
		if tt == css.CommentToken {
			continue
		}
		prelude.Write(data)
	}

	var body bytes.Buffer
	depth := 1
	for {
		tt, data := l.Next()
		if tt == css.ErrorToken {
			return "", nil, fmt.Errorf("unterminated @media block")
		}
		switch tt {
		case css.LeftBraceToken:
			depth++
		case css.RightBraceToken:
			depth--
		}
		if depth == 0 {
			break
		}
		body.Write(data)
	}
	return strings.Join(strings.Fields(prelude.String()), " "), body.Bytes(), nil
}
