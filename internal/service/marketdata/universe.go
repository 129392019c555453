package marketdata

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"FieldScan/internal/domain/repository"
)

var ErrNoUniverse = errors.New("no ticker universe configured")

// StaticUniverse is a fixed ticker list.
type StaticUniverse []string

func (u StaticUniverse) Tickers(context.Context) ([]string, error) {
	return normalize(u), nil
}

// FileUniverse reads one ticker per line. Blank lines and '#' comments are ignored.
type FileUniverse string

func (f FileUniverse) Tickers(context.Context) ([]string, error) {
	fh, err := os.Open(string(f))
	if err != nil {
		return nil, fmt.Errorf("open universe file: %w", err)
	}
	defer fh.Close()

	var out []string
	sc := bufio.NewScanner(fh)
	for sc.Scan() {
		line := sc.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		for _, tok := range strings.FieldsFunc(line, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' }) {
			out = append(out, tok)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read universe file: %w", err)
	}
	return normalize(out), nil
}

// ResolvingUniverse tries the configured list, then the file, then the data
// source's own listing. An empty result from every layer is ErrNoUniverse.
type ResolvingUniverse struct {
	List   []string
	File   string
	Source repository.Universe
}

func (r ResolvingUniverse) Tickers(ctx context.Context) ([]string, error) {
	if t := normalize(r.List); len(t) > 0 {
		return t, nil
	}
	if r.File != "" {
		t, err := FileUniverse(r.File).Tickers(ctx)
		if err != nil {
			return nil, err
		}
		if len(t) > 0 {
			return t, nil
		}
	}
	if r.Source != nil {
		t, err := r.Source.Tickers(ctx)
		if err != nil {
			return nil, fmt.Errorf("list source tickers: %w", err)
		}
		if t = normalize(t); len(t) > 0 {
			return t, nil
		}
	}
	return nil, ErrNoUniverse
}

// normalize upper-cases, trims and dedupes while keeping first-seen order.
func normalize(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, t := range in {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
