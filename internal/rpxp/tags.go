package rpxp

import (
	"cmp"
	"regexp"
	"slices"
	"strings"
	"unicode"
)

type TagMatch struct {
	Tag   string
	Body  string
	Words int
}

// tagPattern builds an anchored alternation over tags. Longer tags are
// listed first so "AB" wins over "A" for a line starting with "AB".
func tagPattern(tags []string) (*regexp.Regexp, error) {
	uniq := make([]string, 0, len(tags))
	for _, tag := range tags {
		if tag == "" || slices.Contains(uniq, tag) {
			continue
		}
		uniq = append(uniq, tag)
	}
	if len(uniq) == 0 {
		return nil, nil
	}
	slices.SortFunc(uniq, func(a, b string) int {
		if c := cmp.Compare(len(b), len(a)); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	quoted := make([]string, len(uniq))
	for i, tag := range uniq {
		quoted[i] = regexp.QuoteMeta(tag)
	}
	return regexp.Compile(`^(?:` + strings.Join(quoted, "|") + `)`)
}

// ResolveTag reports which of tags prefixes content and what was said
// after it.
func ResolveTag(content string, tags []string) (TagMatch, bool) {
	re, err := tagPattern(tags)
	if err != nil || re == nil {
		return TagMatch{}, false
	}
	loc := re.FindStringIndex(content)
	if loc == nil {
		return TagMatch{}, false
	}
	body := strings.TrimLeftFunc(content[loc[1]:], unicode.IsSpace)
	return TagMatch{
		Tag:   content[:loc[1]],
		Body:  body,
		Words: CountWords(body),
	}, true
}

func CountWords(body string) int {
	return len(strings.Fields(body))
}

func tagsOf(tuppers []Tupper) []string {
	out := make([]string, 0, len(tuppers))
	for _, t := range tuppers {
		out = append(out, t.Tag)
	}
	return out
}
