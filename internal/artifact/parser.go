package artifact

import (
	"regexp"
	"strings"
)

var (
	htmlBlock = regexp.MustCompile("(?is)```html\\s*\\n(.*?)```")
	cssBlock  = regexp.MustCompile("(?is)```css\\s*\\n(.*?)```")
	jsBlock   = regexp.MustCompile("(?is)```(?:js|javascript)\\s*\\n(.*?)```")
)

// SingleFile is the parsed form of a single-page reply.
type SingleFile struct {
	HTML string
}

// MultiFile is the parsed form of a page split into markup, style and script.
type MultiFile struct {
	HTML string
	CSS  string
	JS   string
}

// ParseSingleFile extracts the html block. A reply without fences is taken
// as the page itself.
func ParseSingleFile(content string) SingleFile {
	if code, ok := firstBlock(htmlBlock, content); ok {
		return SingleFile{HTML: code}
	}
	return SingleFile{HTML: strings.TrimSpace(content)}
}

func ParseMultiFile(content string) MultiFile {
	var out MultiFile
	out.HTML, _ = firstBlock(htmlBlock, content)
	out.CSS, _ = firstBlock(cssBlock, content)
	out.JS, _ = firstBlock(jsBlock, content)
	return out
}

func firstBlock(re *regexp.Regexp, content string) (string, bool) {
	m := re.FindStringSubmatch(content)
	if len(m) < 2 {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}
